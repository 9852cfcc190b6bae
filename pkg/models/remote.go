package models

// SubmitRequest is the body sent to the remote service to create a job.
type SubmitRequest struct {
	Coordinates Coordinates  `json:"coordinates"`
	StartYear   int          `json:"start_year"`
	EndYear     int          `json:"end_year"`
	ChangeTypes []ChangeType `json:"change_types"`
}

// SubmitResponse is the remote service's answer to a job submission.
type SubmitResponse struct {
	JobID   string    `json:"job_id"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
}

// StatusResponse is one status poll result. Optional fields are nil when the
// remote service omitted them.
type StatusResponse struct {
	JobID       string       `json:"job_id"`
	Status      JobStatus    `json:"status"`
	Progress    *int         `json:"progress,omitempty"`
	Message     string       `json:"message,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	StartYear   *int         `json:"start_year,omitempty"`
	EndYear     *int         `json:"end_year,omitempty"`
}

// Change is one detected change polygon from a results payload.
type Change struct {
	ChangeID    string      `json:"change_id"`
	Type        ChangeType  `json:"type"`
	AreaKm2     float64     `json:"area_km2"`
	Severity    string      `json:"severity"`
	Coordinates Coordinates `json:"coordinates"`
}

// ResultsResponse is the full results payload of a completed job. Only the
// Statistics end up in the job history; the rest is cached for result views.
type ResultsResponse struct {
	JobID         string            `json:"job_id"`
	Status        JobStatus         `json:"status"`
	Statistics    ResultsSummary    `json:"statistics"`
	TotalChanges  int               `json:"total_changes"`
	ChangesByType map[string]int    `json:"changes_by_type,omitempty"`
	TopChanges    []Change          `json:"top_changes,omitempty"`
	Files         map[string]string `json:"files,omitempty"`
}

// Summary returns the statistics to keep in the job history. Backends that
// only report the change count at the top level or omit the total area get
// those fields filled in.
func (r ResultsResponse) Summary() ResultsSummary {
	s := r.Statistics
	if s.TotalChanges == 0 {
		s.TotalChanges = r.TotalChanges
	}
	if s.TotalAreaChangedKm2 == 0 {
		s.TotalAreaChangedKm2 = s.DeforestationKm2 + s.UrbanExpansionKm2 + s.EncroachmentKm2
	}
	return s
}
