package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/sentineleye/internal/jobs"
	"github.com/kiranshivaraju/sentineleye/internal/store"
	"github.com/kiranshivaraju/sentineleye/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRemote struct {
	mu       sync.Mutex
	statuses []models.StatusResponse
	calls    int
	summary  models.ResultsSummary
}

func (f *fakeRemote) Submit(_ context.Context, req models.SubmitRequest) (models.SubmitResponse, error) {
	return models.SubmitResponse{JobID: "job-1", Status: models.JobStatusQueued, Message: "queued"}, nil
}

func (f *fakeRemote) Status(_ context.Context, jobID string) (models.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := f.statuses[min(f.calls, len(f.statuses)-1)]
	f.calls++
	resp.JobID = jobID
	return resp, nil
}

func (f *fakeRemote) Results(_ context.Context, jobID string) (models.ResultsResponse, error) {
	return models.ResultsResponse{JobID: jobID, Status: models.JobStatusCompleted, Statistics: f.summary}, nil
}

func (f *fakeRemote) Ready(context.Context) error { return nil }

func status(s models.JobStatus, progress int, msg string) models.StatusResponse {
	return models.StatusResponse{Status: s, Progress: &progress, Message: msg}
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestApp(rc *fakeRemote) (*app, *bytes.Buffer) {
	var out bytes.Buffer
	return &app{
		out:    &out,
		store:  store.NewMemoryStore(store.Options{}),
		remote: rc,
		poll:   jobs.Options{Interval: 5 * time.Millisecond},
		now:    func() time.Time { return now },
	}, &out
}

func execute(t *testing.T, a *app, args ...string) error {
	t.Helper()
	root := newRootCmd(a)
	root.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return root.ExecuteContext(ctx)
}

func seed(t *testing.T, a *app, id string, st models.JobStatus, summary *models.ResultsSummary) {
	t.Helper()
	_, err := a.store.Upsert(context.Background(), models.JobPatch{
		ID:             id,
		Status:         &st,
		Coordinates:    &models.Coordinates{Lat: -10.5, Lon: -63},
		ResultsSummary: summary,
	})
	require.NoError(t, err)
}

func TestSubmit_Watch_Completes(t *testing.T) {
	rc := &fakeRemote{
		statuses: []models.StatusResponse{
			status(models.JobStatusProcessing, 40, "downloading scenes"),
			status(models.JobStatusCompleted, 100, "done"),
		},
		summary: models.ResultsSummary{DeforestationKm2: 320, TotalChanges: 12},
	}
	a, out := newTestApp(rc)

	err := execute(t, a, "submit", "--lat", "-10.5", "--lon", "-63", "--watch")
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "submitted job-1 (Queued)")
	assert.Contains(t, got, "Completed")
	assert.Contains(t, got, "CRITICAL")

	job, found, err := a.store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	require.NotNil(t, job.ResultsSummary)
	assert.Equal(t, 12, job.ResultsSummary.TotalChanges)
}

func TestSubmit_InvalidRequest(t *testing.T) {
	a, _ := newTestApp(&fakeRemote{})

	err := execute(t, a, "submit", "--lat", "95", "--lon", "0")
	require.Error(t, err)
	assert.ErrorIs(t, err, jobs.ErrInvalidRequest)
}

func TestWatch_RemoteFailure(t *testing.T) {
	rc := &fakeRemote{statuses: []models.StatusResponse{
		status(models.JobStatusFailed, 0, "no cloud-free scenes"),
	}}
	a, out := newTestApp(rc)
	seed(t, a, "job-9", models.JobStatusQueued, nil)

	err := execute(t, a, "watch", "job-9")
	require.Error(t, err)

	var failure *jobs.RemoteJobFailure
	require.True(t, errors.As(err, &failure))
	assert.Contains(t, out.String(), "no cloud-free scenes")
}

func TestHistory_Filters(t *testing.T) {
	a, out := newTestApp(&fakeRemote{})
	seed(t, a, "job-a", models.JobStatusCompleted, &models.ResultsSummary{})
	seed(t, a, "job-b", models.JobStatusProcessing, nil)

	require.NoError(t, execute(t, a, "history", "--status", "completed"))
	assert.Contains(t, out.String(), "job-a")
	assert.NotContains(t, out.String(), "job-b")

	out.Reset()
	require.NoError(t, execute(t, a, "history", "-q", "JOB-B"))
	assert.Contains(t, out.String(), "job-b")
	assert.NotContains(t, out.String(), "job-a")

	assert.Error(t, execute(t, a, "history", "--sort", "sideways"))
}

func TestInit_MemoryBackendFallsBackToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	t.Setenv("REMOTE_BASE_URL", "http://localhost:8000")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("SQLITE_PATH", path)

	ctx := context.Background()
	st, err := store.NewSQLiteStore(ctx, path, "sentineleye:job-history", store.Options{})
	require.NoError(t, err)
	_, err = st.Upsert(ctx, models.JobPatch{ID: "job-earlier", Status: models.Ptr(models.JobStatusProcessing)})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	var out bytes.Buffer
	a := &app{out: &out, remote: &fakeRemote{}}
	require.NoError(t, execute(t, a, "history"))
	assert.Contains(t, out.String(), "job-earlier", "history from an earlier run is visible")
	_, isSQLite := a.store.(*store.SQLiteStore)
	assert.True(t, isSQLite)
}

func TestAlerts(t *testing.T) {
	a, out := newTestApp(&fakeRemote{})
	seed(t, a, "job-a", models.JobStatusCompleted, &models.ResultsSummary{DeforestationKm2: 320})
	seed(t, a, "job-b", models.JobStatusCompleted, &models.ResultsSummary{UrbanExpansionKm2: 55})

	require.NoError(t, execute(t, a, "alerts", "--severity", "critical"))
	assert.Contains(t, out.String(), "job-a")
	assert.NotContains(t, out.String(), "job-b")

	assert.Error(t, execute(t, a, "alerts", "--severity", "severe"))
}

func TestAlerts_Empty(t *testing.T) {
	a, out := newTestApp(&fakeRemote{})

	require.NoError(t, execute(t, a, "alerts"))
	assert.Equal(t, "no alerts\n", out.String())
}

func TestDashboard(t *testing.T) {
	a, out := newTestApp(&fakeRemote{})
	a.store = store.NewMemoryStore(store.Options{Now: func() time.Time { return now.Add(-time.Hour) }})
	seed(t, a, "job-a", models.JobStatusCompleted, &models.ResultsSummary{DeforestationKm2: 320, TotalAreaChangedKm2: 320, TotalChanges: 4})

	require.NoError(t, execute(t, a, "dashboard"))
	got := out.String()
	assert.Regexp(t, `total scans\s+1`, got)
	assert.Regexp(t, `active threats\s+1`, got)
	assert.Regexp(t, `recent changes\s+4`, got)
	assert.Contains(t, got, "Increasing")
}

func TestClear_RequiresConfirmation(t *testing.T) {
	a, out := newTestApp(&fakeRemote{})
	seed(t, a, "job-a", models.JobStatusQueued, nil)

	require.Error(t, execute(t, a, "clear"))
	list, err := a.store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, execute(t, a, "clear", "--yes"))
	assert.Contains(t, out.String(), "history cleared")
	list, err = a.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}
