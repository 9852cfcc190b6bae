// Package models contains shared data models used across the SentinelEye codebase.
package models

import (
	"fmt"
	"time"
)

// ChangeType is a category of land-cover change the remote service can detect.
type ChangeType string

const (
	ChangeDeforestation  ChangeType = "deforestation"
	ChangeUrbanExpansion ChangeType = "urban_expansion"
	ChangeEncroachment   ChangeType = "encroachment"
)

// Valid reports whether c is one of the known change types.
func (c ChangeType) Valid() bool {
	switch c {
	case ChangeDeforestation, ChangeUrbanExpansion, ChangeEncroachment:
		return true
	}
	return false
}

// Coordinates is the centre point of an area of interest.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsZero reports whether no coordinates were set.
func (c Coordinates) IsZero() bool {
	return c.Lat == 0 && c.Lon == 0
}

// Label renders the coordinates as a short human-readable region label.
func (c Coordinates) Label() string {
	return fmt.Sprintf("%.4f°, %.4f°", c.Lat, c.Lon)
}

// ResultsSummary is the aggregate of a completed job's results.
type ResultsSummary struct {
	TotalAreaChangedKm2 float64 `json:"total_area_changed_km2"`
	DeforestationKm2    float64 `json:"deforestation_km2"`
	UrbanExpansionKm2   float64 `json:"urban_expansion_km2"`
	EncroachmentKm2     float64 `json:"encroachment_km2"`
	TotalChanges        int     `json:"total_changes"`
}

// Job is one submitted analysis request tracked through its remote lifecycle.
// Coordinates, StartYear, EndYear and ChangeTypes are set at submission and
// never mutated afterwards.
type Job struct {
	ID             string          `json:"job_id"`
	Status         JobStatus       `json:"status"`
	Progress       int             `json:"progress"`
	Message        string          `json:"message"`
	Coordinates    Coordinates     `json:"coordinates"`
	StartYear      int             `json:"start_year"`
	EndYear        int             `json:"end_year"`
	ChangeTypes    []ChangeType    `json:"change_types"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ResultsSummary *ResultsSummary `json:"results_summary,omitempty"`
}

// JobPatch carries the fields a caller wants to write for one job. Nil fields
// keep the value already stored.
type JobPatch struct {
	ID             string
	Status         *JobStatus
	Progress       *int
	Message        *string
	Coordinates    *Coordinates
	StartYear      *int
	EndYear        *int
	ChangeTypes    []ChangeType
	CreatedAt      *time.Time
	ResultsSummary *ResultsSummary
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
