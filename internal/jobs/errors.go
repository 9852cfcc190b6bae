package jobs

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest is returned when a job request fails local validation
// and is never sent to the remote service.
var ErrInvalidRequest = errors.New("invalid job request")

// SubmissionError means the remote service rejected job creation. Payload is
// the remote error body (or the transport error text when no body arrived).
type SubmissionError struct {
	StatusCode int
	Payload    string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("submit job: remote returned %d: %s", e.StatusCode, e.Payload)
	}
	return fmt.Sprintf("submit job: %s", e.Payload)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollTransportError is a client-side failure during a poll tick. The job
// record keeps its last known state.
type PollTransportError struct {
	JobID string
	Op    string
	Err   error
}

func (e *PollTransportError) Error() string {
	return fmt.Sprintf("poll %s for job %s: %v", e.Op, e.JobID, e.Err)
}

func (e *PollTransportError) Unwrap() error { return e.Err }

// RemoteJobFailure is reported when the remote service marks a job Failed.
type RemoteJobFailure struct {
	JobID   string
	Message string
}

func (e *RemoteJobFailure) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("job %s failed", e.JobID)
	}
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}
