package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sentineleye/pkg/models"
)

// MemoryStore keeps the job history in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	jobs   []models.Job
	opts   Options
	origin string
	notify *notifier
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:   opts.withDefaults(),
		origin: uuid.NewString(),
		notify: newNotifier(),
	}
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

func (m *MemoryStore) Upsert(_ context.Context, patch models.JobPatch) (models.Job, error) {
	if patch.ID == "" {
		return models.Job{}, ErrInvalidJobID
	}

	m.mu.Lock()
	var merged models.Job
	m.jobs, merged = upsertInto(m.jobs, patch, m.opts.Now(), m.opts.Cap)
	m.mu.Unlock()

	m.notify.publish(models.ChangeEvent{
		Kind:   models.ChangeUpsert,
		JobID:  merged.ID,
		Origin: m.origin,
		At:     merged.UpdatedAt,
	})
	return merged, nil
}

func (m *MemoryStore) Get(_ context.Context, jobID string) (models.Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == jobID {
			return cloneJob(j), true, nil
		}
	}
	return models.Job{}, false, nil
}

func (m *MemoryStore) List(_ context.Context) ([]models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, cloneJob(j))
	}
	return out, nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.jobs = nil
	m.mu.Unlock()

	m.notify.publish(models.ChangeEvent{
		Kind:   models.ChangeClear,
		Origin: m.origin,
		At:     m.opts.Now().UTC(),
	})
	return nil
}

func (m *MemoryStore) Subscribe(fn func(models.ChangeEvent)) func() {
	return m.notify.subscribe(fn)
}

func (m *MemoryStore) Close() error { return nil }

func cloneJob(j models.Job) models.Job {
	j.ChangeTypes = append([]models.ChangeType{}, j.ChangeTypes...)
	if j.ResultsSummary != nil {
		s := *j.ResultsSummary
		j.ResultsSummary = &s
	}
	return j
}

var _ Store = (*MemoryStore)(nil)
