package handler

import (
	"context"

	"github.com/kiranshivaraju/sentineleye/internal/jobs"
	"github.com/kiranshivaraju/sentineleye/pkg/models"
)

// JobSubmitter creates jobs on the remote service.
type JobSubmitter interface {
	Submit(ctx context.Context, req models.SubmitRequest) (models.Job, error)
}

// JobPoller starts and stops polling tasks.
type JobPoller interface {
	Start(ctx context.Context, jobID string, opts ...jobs.StartOption) *jobs.Handle
	Handle(jobID string) (*jobs.Handle, bool)
	Cancel(jobID string) bool
}

// JobReader is the read side of the job store.
type JobReader interface {
	Get(ctx context.Context, jobID string) (models.Job, bool, error)
	List(ctx context.Context) ([]models.Job, error)
}

type JobClearer interface {
	Clear(ctx context.Context) error
}

type ChangeSubscriber interface {
	Subscribe(fn func(models.ChangeEvent)) (unsubscribe func())
}

type ResultsGetter interface {
	Get(ctx context.Context, jobID string) (models.ResultsResponse, error)
}
