package models

import "time"

// Severity of an alert. Severities are totally ordered LOW < WARNING < CRITICAL.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Rank returns the position of s in the severity order, or -1 if unknown.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	}
	return -1
}

// AlertType categorizes what an alert is about.
type AlertType string

const (
	AlertDeforestation  AlertType = "DEFORESTATION"
	AlertUrbanExpansion AlertType = "URBAN_EXPANSION"
	AlertNDVIDrop       AlertType = "NDVI_DROP"
	AlertAnomaly        AlertType = "ANOMALY"
)

// Alert is derived from a completed job. Alerts are never persisted; they are
// recomputed from the job history on every read.
type Alert struct {
	ID              string    `json:"id"`
	JobID           string    `json:"job_id"`
	Severity        Severity  `json:"severity"`
	Type            AlertType `json:"type"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	RegionLabel     string    `json:"region_label"`
	Recommendations []string  `json:"recommendations"`
	CreatedAt       time.Time `json:"created_at"`
}
