package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/sentineleye/internal/cache"
	"github.com/kiranshivaraju/sentineleye/internal/remote"
	"github.com/kiranshivaraju/sentineleye/pkg/models"
)

// ResultsSource serves full results payloads. When a cache is configured the
// payload is kept there so result views can render without refetching.
type ResultsSource struct {
	remote remote.Client
	cache  cache.Cache
	ttl    time.Duration
}

// NewResultsSource creates a ResultsSource. c may be nil.
func NewResultsSource(rc remote.Client, c cache.Cache, ttl time.Duration) *ResultsSource {
	return &ResultsSource{remote: rc, cache: c, ttl: ttl}
}

// Get returns cached results when present and falls back to Fetch.
func (s *ResultsSource) Get(ctx context.Context, jobID string) (models.ResultsResponse, error) {
	if s.cache != nil {
		res, found, err := s.cache.GetResults(ctx, jobID)
		if err != nil {
			slog.WarnContext(ctx, "results cache read failed", "job_id", jobID, "error", err)
		} else if found {
			return res, nil
		}
	}
	return s.Fetch(ctx, jobID)
}

// Fetch always asks the remote service and refreshes the cache.
func (s *ResultsSource) Fetch(ctx context.Context, jobID string) (models.ResultsResponse, error) {
	res, err := s.remote.Results(ctx, jobID)
	if err != nil {
		return models.ResultsResponse{}, err
	}
	if res.JobID == "" {
		res.JobID = jobID
	}

	if s.cache != nil {
		if err := s.cache.SetResults(ctx, res, s.ttl); err != nil {
			slog.WarnContext(ctx, "results cache write failed", "job_id", jobID, "error", err)
		}
	}
	return res, nil
}
