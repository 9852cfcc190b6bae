package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/kiranshivaraju/sentineleye/pkg/models"
)

var ErrInvalidJobID = errors.New("job id is required")

// DefaultCap is the number of jobs kept when no cap is configured.
const DefaultCap = 20

// Store is the job history. Every mutating call broadcasts a ChangeEvent to
// subscribers, including events produced by other processes that share the
// same backing medium.
type Store interface {
	Ping(ctx context.Context) error

	// Upsert merges patch over the stored record (or inserts it) and trims the
	// history to the configured cap. It returns the merged record.
	Upsert(ctx context.Context, patch models.JobPatch) (models.Job, error)
	Get(ctx context.Context, jobID string) (models.Job, bool, error)
	// List returns all records, most recently updated first.
	List(ctx context.Context) ([]models.Job, error)
	Clear(ctx context.Context) error

	// Subscribe registers fn for change notifications and returns a function
	// that removes it.
	Subscribe(fn func(models.ChangeEvent)) (unsubscribe func())
	Close() error
}

// Listener is implemented by stores whose medium is shared between processes.
// Listen relays other writers' change events to local subscribers until ctx
// is done.
type Listener interface {
	Listen(ctx context.Context) error
}

// Options configures a Store.
type Options struct {
	Cap int
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Cap <= 0 {
		o.Cap = DefaultCap
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Merge applies patch over existing (nil when the job is new) and returns the
// resulting record. It enforces the record invariants:
//   - a terminal status is never replaced by a different one
//   - progress is 100 exactly when the status is Completed
//   - a results summary is only kept on Completed records
//   - request parameters are only written while still unset
//   - UpdatedAt strictly increases
func Merge(existing *models.Job, patch models.JobPatch, now time.Time) models.Job {
	now = now.UTC().Truncate(time.Microsecond)

	var job models.Job
	if existing != nil {
		job = *existing
		job.ChangeTypes = append([]models.ChangeType(nil), existing.ChangeTypes...)
		if existing.ResultsSummary != nil {
			s := *existing.ResultsSummary
			job.ResultsSummary = &s
		}
	} else {
		job = models.Job{ID: patch.ID, Status: models.JobStatusQueued, CreatedAt: now}
		if patch.CreatedAt != nil && !patch.CreatedAt.IsZero() {
			job.CreatedAt = patch.CreatedAt.UTC().Truncate(time.Microsecond)
		}
	}

	if patch.Status != nil && patch.Status.Valid() && !job.Status.IsTerminal() {
		job.Status = *patch.Status
	}
	if patch.Message != nil {
		job.Message = *patch.Message
	}
	if patch.Progress != nil {
		job.Progress = *patch.Progress
	}
	if patch.ResultsSummary != nil {
		s := *patch.ResultsSummary
		job.ResultsSummary = &s
	}

	if patch.Coordinates != nil && job.Coordinates.IsZero() {
		job.Coordinates = *patch.Coordinates
	}
	if patch.StartYear != nil && job.StartYear == 0 {
		job.StartYear = *patch.StartYear
	}
	if patch.EndYear != nil && job.EndYear == 0 {
		job.EndYear = *patch.EndYear
	}
	if len(patch.ChangeTypes) > 0 && len(job.ChangeTypes) == 0 {
		job.ChangeTypes = append([]models.ChangeType(nil), patch.ChangeTypes...)
	}
	if job.ChangeTypes == nil {
		job.ChangeTypes = []models.ChangeType{}
	}

	if job.Status == models.JobStatusCompleted {
		job.Progress = 100
	} else {
		job.ResultsSummary = nil
		job.Progress = max(0, min(job.Progress, 99))
	}

	job.UpdatedAt = now
	if existing != nil && !now.After(existing.UpdatedAt) {
		job.UpdatedAt = existing.UpdatedAt.Add(time.Microsecond)
	}
	return job
}

// SortNewest orders jobs by UpdatedAt descending, breaking ties by id.
func SortNewest(jobs []models.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].UpdatedAt.Equal(jobs[j].UpdatedAt) {
			return jobs[i].UpdatedAt.After(jobs[j].UpdatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
}

// Trim sorts jobs newest first and drops everything beyond limit.
func Trim(jobs []models.Job, limit int) []models.Job {
	SortNewest(jobs)
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}

// upsertInto merges patch into the history slice and trims it. It returns the
// new history and the merged record.
func upsertInto(history []models.Job, patch models.JobPatch, now time.Time, limit int) ([]models.Job, models.Job) {
	idx := -1
	for i := range history {
		if history[i].ID == patch.ID {
			idx = i
			break
		}
	}

	var merged models.Job
	if idx >= 0 {
		merged = Merge(&history[idx], patch, now)
		history[idx] = merged
	} else {
		merged = Merge(nil, patch, now)
		history = append(history, merged)
	}
	return Trim(history, limit), merged
}
