package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JobStatus is the closed set of remote job states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "Queued"
	JobStatusProcessing JobStatus = "Processing"
	JobStatusCompleted  JobStatus = "Completed"
	JobStatusFailed     JobStatus = "Failed"
)

// ParseJobStatus maps a status string from any backend version onto the
// closed enum. Different backends report "COMPLETED", "completed" and
// "Completed" for the same state, so matching ignores case and whitespace.
func ParseJobStatus(s string) (JobStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "queued":
		return JobStatusQueued, nil
	case "processing":
		return JobStatusProcessing, nil
	case "completed":
		return JobStatusCompleted, nil
	case "failed":
		return JobStatusFailed, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the four canonical states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// UnmarshalJSON normalizes the status at decode time.
func (s *JobStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("job status: %w", err)
	}
	parsed, err := ParseJobStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
