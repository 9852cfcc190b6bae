package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/sentineleye/internal/logging"
	"github.com/kiranshivaraju/sentineleye/internal/remote"
	"github.com/kiranshivaraju/sentineleye/internal/store"
	"github.com/kiranshivaraju/sentineleye/pkg/models"
)

const (
	DefaultInterval   = 5 * time.Second
	DefaultSlowAfter  = 2 * time.Minute
	DefaultStuckAfter = 5 * time.Minute
)

// State of one polling task.
type State string

const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Finished reports whether the task has stopped.
func (s State) Finished() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

type AdvisoryKind string

const (
	AdvisorySlow  AdvisoryKind = "slow"
	AdvisoryStuck AdvisoryKind = "stuck"
)

// Advisory is a non-fatal notice that a job has stayed Queued for longer than
// expected. Advisories never change the polling state.
type Advisory struct {
	JobID     string        `json:"job_id"`
	Kind      AdvisoryKind  `json:"kind"`
	QueuedFor time.Duration `json:"queued_for"`
	Message   string        `json:"message"`
	Actions   []string      `json:"actions,omitempty"`
}

// Options configures a Poller. Zero values fall back to the defaults.
type Options struct {
	Interval   time.Duration
	SlowAfter  time.Duration
	StuckAfter time.Duration
	Results    *ResultsSource
	Now        func() time.Time
	Logger     *slog.Logger
}

// Poller runs at most one polling task per job id.
type Poller struct {
	remote  remote.Client
	store   store.Store
	results *ResultsSource
	opts    Options
	log     *slog.Logger

	mu      sync.Mutex
	handles map[string]*Handle
	wg      sync.WaitGroup
}

func NewPoller(rc remote.Client, st store.Store, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.SlowAfter <= 0 {
		opts.SlowAfter = DefaultSlowAfter
	}
	if opts.StuckAfter <= 0 {
		opts.StuckAfter = DefaultStuckAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	results := opts.Results
	if results == nil {
		results = NewResultsSource(rc, nil, 0)
	}
	return &Poller{
		remote:  rc,
		store:   st,
		results: results,
		opts:    opts,
		log:     opts.Logger,
		handles: make(map[string]*Handle),
	}
}

type StartOption func(*Handle)

// WithAdvisoryFunc registers fn to receive staleness advisories. fn runs on
// the polling goroutine and must not block.
func WithAdvisoryFunc(fn func(Advisory)) StartOption {
	return func(h *Handle) { h.onAdvisory = fn }
}

// Start begins polling jobID. Any task already running for the same id is
// cancelled first. The task stops when it reaches a terminal state, when the
// handle is cancelled or when ctx is done.
func (p *Poller) Start(ctx context.Context, jobID string, opts ...StartOption) *Handle {
	taskCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		jobID:   jobID,
		cancel:  cancel,
		refresh: make(chan struct{}, 1),
		done:    make(chan struct{}),
		state:   StatePolling,
	}
	for _, opt := range opts {
		opt(h)
	}

	p.mu.Lock()
	if prev, ok := p.handles[jobID]; ok {
		prev.Cancel()
	}
	p.handles[jobID] = h
	p.wg.Add(1)
	p.mu.Unlock()

	p.log.InfoContext(ctx, "polling started", "job_id", jobID, "interval", p.opts.Interval)
	go p.run(taskCtx, h)
	return h
}

// Handle returns the task for jobID. A finished task stays visible, with its
// final state and error, until Start replaces it or Forget drops it.
func (p *Poller) Handle(jobID string) (*Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handles[jobID]
	return h, ok
}

// Cancel stops the task for jobID. It reports whether one was running.
func (p *Poller) Cancel(jobID string) bool {
	h, ok := p.Handle(jobID)
	if !ok || h.State().Finished() {
		return false
	}
	h.Cancel()
	return true
}

// Forget drops the finished task for jobID. It reports whether one was
// dropped; running tasks are left alone.
func (p *Poller) Forget(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handles[jobID]
	if !ok || !h.State().Finished() {
		return false
	}
	delete(p.handles, jobID)
	return true
}

// Active returns the ids of jobs currently being polled.
func (p *Poller) Active() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.handles))
	for id, h := range p.handles {
		if !h.State().Finished() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Shutdown cancels every task and waits for them to exit or for ctx to end.
func (p *Poller) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	for _, h := range p.handles {
		h.Cancel()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) run(ctx context.Context, h *Handle) {
	defer p.wg.Done()
	defer close(h.done)
	defer h.cancel()

	ctx = logging.ContextAttrs(ctx, slog.String("job_id", h.jobID))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			h.finish(StateCancelled, nil)
			p.log.InfoContext(ctx, "polling cancelled")
			return
		case <-timer.C:
		case <-h.refresh:
		}

		if p.tick(ctx, h) {
			// No-op unless the tick was cut short by ctx.
			h.finish(StateCancelled, nil)
			return
		}
		timer.Reset(p.opts.Interval)
	}
}

// tick performs one status fetch and reports whether polling should stop.
func (p *Poller) tick(ctx context.Context, h *Handle) bool {
	status, err := p.remote.Status(ctx, h.jobID)
	if err != nil {
		return p.transportFailure(ctx, h, "status", err)
	}

	patch := statusPatch(h.jobID, status)

	switch status.Status {
	case models.JobStatusCompleted:
		results, err := p.results.Fetch(ctx, h.jobID)
		if err != nil {
			return p.transportFailure(ctx, h, "results", err)
		}
		summary := results.Summary()
		patch.ResultsSummary = &summary
		if !p.apply(ctx, h, patch) {
			return true
		}
		h.finish(StateCompleted, nil)
		p.log.InfoContext(ctx, "job completed",
			"total_area_changed_km2", summary.TotalAreaChangedKm2,
			"total_changes", summary.TotalChanges)
		return true

	case models.JobStatusFailed:
		if !p.apply(ctx, h, patch) {
			return true
		}
		h.finish(StateFailed, &RemoteJobFailure{JobID: h.jobID, Message: status.Message})
		p.log.WarnContext(ctx, "job failed remotely", "message", status.Message)
		return true
	}

	if !p.apply(ctx, h, patch) {
		return true
	}
	p.log.DebugContext(ctx, "job still running", "status", status.Status, "progress", patch.Progress)
	p.checkStaleness(ctx, h, status.Status)
	return false
}

// apply writes patch unless the task has been cancelled. It reports whether
// polling may continue.
func (p *Poller) apply(ctx context.Context, h *Handle, patch models.JobPatch) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled || ctx.Err() != nil {
		return false
	}
	if _, err := p.store.Upsert(context.WithoutCancel(ctx), patch); err != nil {
		h.state = StateFailed
		h.err = fmt.Errorf("store job %s: %w", h.jobID, err)
		p.log.ErrorContext(ctx, "store update failed", "error", err)
		return false
	}
	return true
}

func (p *Poller) transportFailure(ctx context.Context, h *Handle, op string, err error) bool {
	if ctx.Err() != nil {
		h.finish(StateCancelled, nil)
		return true
	}
	perr := &PollTransportError{JobID: h.jobID, Op: op, Err: err}
	h.finish(StateFailed, perr)
	p.log.ErrorContext(ctx, "poll failed", "op", op, "error", err)
	return true
}

func (p *Poller) checkStaleness(ctx context.Context, h *Handle, status models.JobStatus) {
	if status != models.JobStatusQueued {
		return
	}

	now := p.opts.Now()
	if h.queuedSince.IsZero() {
		h.queuedSince = now
	}
	elapsed := now.Sub(h.queuedSince)

	if !h.slowSent && elapsed >= p.opts.SlowAfter {
		h.slowSent = true
		p.advise(ctx, h, Advisory{
			JobID:     h.jobID,
			Kind:      AdvisorySlow,
			QueuedFor: elapsed,
			Message:   "Job is taking longer than expected. The backend may be processing a backlog.",
		})
	}
	if !h.stuckSent && elapsed >= p.opts.StuckAfter {
		h.stuckSent = true
		p.advise(ctx, h, Advisory{
			JobID:     h.jobID,
			Kind:      AdvisoryStuck,
			QueuedFor: elapsed,
			Message:   "Job appears stuck. The backend worker may not be running or the processing queue has issues.",
			Actions:   []string{"copy_job_id", "return_to_dashboard"},
		})
	}
}

func (p *Poller) advise(ctx context.Context, h *Handle, a Advisory) {
	h.mu.Lock()
	h.advisories = append(h.advisories, a)
	h.mu.Unlock()

	p.log.WarnContext(ctx, "job queued longer than expected", "advisory", a.Kind, "queued_for", a.QueuedFor)
	if h.onAdvisory != nil {
		h.onAdvisory(a)
	}
}

func statusPatch(jobID string, s models.StatusResponse) models.JobPatch {
	patch := models.JobPatch{
		ID:          jobID,
		Status:      models.Ptr(s.Status),
		Progress:    s.Progress,
		Coordinates: s.Coordinates,
		StartYear:   s.StartYear,
		EndYear:     s.EndYear,
	}
	if s.Message != "" {
		patch.Message = models.Ptr(s.Message)
	}
	return patch
}

// Handle controls one polling task.
type Handle struct {
	jobID      string
	cancel     context.CancelFunc
	refresh    chan struct{}
	done       chan struct{}
	onAdvisory func(Advisory)

	// owned by the polling goroutine
	queuedSince time.Time
	slowSent    bool
	stuckSent   bool

	mu         sync.Mutex
	cancelled  bool
	state      State
	err        error
	advisories []Advisory
}

func (h *Handle) JobID() string { return h.jobID }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err returns the failure that stopped the task: a *PollTransportError, a
// *RemoteJobFailure or a store error. It is nil otherwise.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Advisories returns the staleness advisories raised so far.
func (h *Handle) Advisories() []Advisory {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Advisory(nil), h.advisories...)
}

// Done is closed once the polling goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task stops or ctx ends and returns the final error.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the task. After Cancel returns the task performs no further
// store writes; a request already in flight is abandoned.
func (h *Handle) Cancel() {
	h.mu.Lock()
	if !h.state.Finished() {
		h.cancelled = true
		h.state = StateCancelled
	}
	h.mu.Unlock()
	h.cancel()
}

// Refresh requests an immediate tick. It is a no-op when one is already
// pending or the task has stopped.
func (h *Handle) Refresh() {
	select {
	case h.refresh <- struct{}{}:
	default:
	}
}

func (h *Handle) finish(state State, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled || h.state.Finished() {
		return
	}
	h.state = state
	h.err = err
}
