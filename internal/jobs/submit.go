// Package jobs submits analysis jobs to the remote service and tracks them
// until they reach a terminal state.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/sentineleye/internal/remote"
	"github.com/kiranshivaraju/sentineleye/internal/store"
	"github.com/kiranshivaraju/sentineleye/pkg/models"
)

// Submitter creates jobs on the remote service and records them in the store.
// It performs no retries.
type Submitter struct {
	remote  remote.Client
	store   store.Store
	results *ResultsSource
	now     func() time.Time
}

type SubmitOption func(*Submitter)

// WithResultsSource makes the submitter read results through rs, typically a
// cached source shared with the poller.
func WithResultsSource(rs *ResultsSource) SubmitOption {
	return func(s *Submitter) { s.results = rs }
}

func NewSubmitter(rc remote.Client, st store.Store, opts ...SubmitOption) *Submitter {
	s := &Submitter{remote: rc, store: st, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.results == nil {
		s.results = NewResultsSource(rc, nil, 0)
	}
	return s
}

// Validate checks a request the way the analysis form does before enabling
// submission.
func Validate(req models.SubmitRequest) error {
	c := req.Coordinates
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: coordinates out of range (%g, %g)", ErrInvalidRequest, c.Lat, c.Lon)
	}
	if req.StartYear <= 0 || req.EndYear <= 0 {
		return fmt.Errorf("%w: start_year and end_year are required", ErrInvalidRequest)
	}
	if req.EndYear < req.StartYear {
		return fmt.Errorf("%w: end_year %d is before start_year %d", ErrInvalidRequest, req.EndYear, req.StartYear)
	}
	if len(req.ChangeTypes) == 0 {
		return fmt.Errorf("%w: at least one change type is required", ErrInvalidRequest)
	}
	for _, t := range req.ChangeTypes {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown change type %q", ErrInvalidRequest, t)
		}
	}
	return nil
}

// Submit sends req to the remote service and stores the resulting job. A
// remote rejection is returned as a *SubmissionError.
func (s *Submitter) Submit(ctx context.Context, req models.SubmitRequest) (models.Job, error) {
	if err := Validate(req); err != nil {
		return models.Job{}, err
	}

	resp, err := s.remote.Submit(ctx, req)
	if err != nil {
		subErr := &SubmissionError{Payload: err.Error(), Err: err}
		var httpErr *remote.HTTPError
		if errors.As(err, &httpErr) {
			subErr.StatusCode = httpErr.StatusCode
			subErr.Payload = httpErr.Body
		}
		return models.Job{}, subErr
	}
	if resp.Status == models.JobStatusFailed {
		return models.Job{}, &SubmissionError{Payload: resp.Message, Err: remote.ErrRejected}
	}

	now := s.now()
	patch := models.JobPatch{
		ID:          resp.JobID,
		Status:      models.Ptr(resp.Status),
		Progress:    models.Ptr(0),
		Message:     models.Ptr(resp.Message),
		Coordinates: models.Ptr(req.Coordinates),
		StartYear:   models.Ptr(req.StartYear),
		EndYear:     models.Ptr(req.EndYear),
		ChangeTypes: req.ChangeTypes,
		CreatedAt:   &now,
	}

	// Completed is only stored together with its summary. When the results
	// cannot be read yet the job is recorded as Processing and the poller
	// completes it.
	if resp.Status == models.JobStatusCompleted {
		res, err := s.results.Fetch(ctx, resp.JobID)
		if err != nil {
			slog.WarnContext(ctx, "results of completed submission unavailable",
				"job_id", resp.JobID, "error", err)
			patch.Status = models.Ptr(models.JobStatusProcessing)
		} else {
			summary := res.Summary()
			patch.ResultsSummary = &summary
		}
	}

	job, err := s.store.Upsert(ctx, patch)
	if err != nil {
		return models.Job{}, fmt.Errorf("store submitted job %s: %w", resp.JobID, err)
	}

	slog.InfoContext(ctx, "job submitted", "job_id", job.ID, "status", job.Status)
	return job, nil
}
