package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/sentineleye/internal/jobs"
	"github.com/kiranshivaraju/sentineleye/internal/remote"
	"github.com/kiranshivaraju/sentineleye/internal/store"
	"github.com/kiranshivaraju/sentineleye/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock remote.Client ---

type mockRemote struct {
	submitFn  func(req models.SubmitRequest) (models.SubmitResponse, error)
	statusFn  func(jobID string) (models.StatusResponse, error)
	resultsFn func(jobID string) (models.ResultsResponse, error)
}

func (m *mockRemote) Submit(_ context.Context, req models.SubmitRequest) (models.SubmitResponse, error) {
	return m.submitFn(req)
}

func (m *mockRemote) Status(_ context.Context, jobID string) (models.StatusResponse, error) {
	if m.statusFn == nil {
		return models.StatusResponse{JobID: jobID, Status: models.JobStatusQueued}, nil
	}
	return m.statusFn(jobID)
}

func (m *mockRemote) Results(_ context.Context, jobID string) (models.ResultsResponse, error) {
	return m.resultsFn(jobID)
}

func (m *mockRemote) Ready(context.Context) error { return nil }

// --- helpers ---

type fixture struct {
	store  *store.MemoryStore
	remote *mockRemote
	poller *jobs.Poller
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  store.NewMemoryStore(store.Options{}),
		remote: &mockRemote{},
	}
	f.poller = jobs.NewPoller(f.remote, f.store, jobs.Options{Interval: time.Hour})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, f.poller.Shutdown(ctx))
	})

	results := jobs.NewResultsSource(f.remote, nil, 0)
	pollCtx := context.Background()

	r := chi.NewRouter()
	r.Post("/jobs", NewSubmitJobHandler(jobs.NewSubmitter(f.remote, f.store), f.poller, pollCtx))
	r.Get("/jobs", NewListJobsHandler(f.store))
	r.Delete("/jobs", NewClearJobsHandler(f.store))
	r.Get("/jobs/{jobID}", NewGetJobHandler(f.store))
	r.Post("/jobs/{jobID}/poll", NewStartPollHandler(f.store, f.poller, pollCtx))
	r.Get("/jobs/{jobID}/poll", NewPollStatusHandler(f.poller))
	r.Post("/jobs/{jobID}/poll/refresh", NewRefreshPollHandler(f.poller))
	r.Delete("/jobs/{jobID}/poll", NewCancelPollHandler(f.poller))
	r.Get("/jobs/{jobID}/results", NewResultsHandler(results))
	r.Get("/alerts", NewAlertsHandler(f.store))
	r.Get("/dashboard", NewDashboardHandler(f.store, nil))
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) completedJob(t *testing.T, id string, s models.ResultsSummary) {
	t.Helper()
	_, err := f.store.Upsert(context.Background(), models.JobPatch{
		ID:             id,
		Status:         models.Ptr(models.JobStatusCompleted),
		Coordinates:    &models.Coordinates{Lat: -10.5, Lon: -63},
		ResultsSummary: &s,
	})
	require.NoError(t, err)
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) map[string]any {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
		Meta map[string]any  `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, v))
	return env.Meta
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Code
}

var submitBody = map[string]any{
	"coordinates":  map[string]float64{"lat": -10.5, "lon": -63},
	"start_year":   2021,
	"end_year":     2024,
	"change_types": []string{"deforestation"},
}

// --- submit ---

func TestSubmitJob_202_StartsPolling(t *testing.T) {
	f := newFixture(t)
	f.remote.submitFn = func(models.SubmitRequest) (models.SubmitResponse, error) {
		return models.SubmitResponse{JobID: "job-1", Status: models.JobStatusQueued}, nil
	}

	rec := f.do(t, http.MethodPost, "/jobs", submitBody)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var job models.Job
	decodeData(t, rec, &job)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, models.JobStatusQueued, job.Status)

	_, polling := f.poller.Handle("job-1")
	assert.True(t, polling)
}

func TestSubmitJob_400_InvalidJSON(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errCode(t, rec))
}

func TestSubmitJob_400_Validation(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{"coordinates": map[string]float64{"lat": 95}, "start_year": 2021, "end_year": 2024}

	rec := f.do(t, http.MethodPost, "/jobs", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errCode(t, rec))
}

func TestSubmitJob_502_Rejected(t *testing.T) {
	f := newFixture(t)
	f.remote.submitFn = func(models.SubmitRequest) (models.SubmitResponse, error) {
		return models.SubmitResponse{}, &remote.HTTPError{StatusCode: 503, Body: "workers busy"}
	}

	rec := f.do(t, http.MethodPost, "/jobs", submitBody)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "SUBMISSION_REJECTED", errCode(t, rec))
	assert.Contains(t, rec.Body.String(), "workers busy")
}

// --- history ---

func TestListJobs_FilterAndSelection(t *testing.T) {
	f := newFixture(t)
	f.completedJob(t, "job-a", models.ResultsSummary{})
	_, err := f.store.Upsert(context.Background(), models.JobPatch{ID: "job-b", Status: models.Ptr(models.JobStatusProcessing)})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/jobs?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []models.Job
	meta := decodeData(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "job-a", list[0].ID)
	assert.Equal(t, float64(1), meta["total"])
	assert.Equal(t, "job-a", meta["selected"])
}

func TestListJobs_400_BadSort(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/jobs?sort=random", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJob(t *testing.T) {
	f := newFixture(t)
	f.completedJob(t, "job-a", models.ResultsSummary{DeforestationKm2: 10})

	rec := f.do(t, http.MethodGet, "/jobs/job-a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var job models.Job
	decodeData(t, rec, &job)
	assert.Equal(t, 100, job.Progress)

	rec = f.do(t, http.MethodGet, "/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClearJobs(t *testing.T) {
	f := newFixture(t)
	f.completedJob(t, "job-a", models.ResultsSummary{})

	rec := f.do(t, http.MethodDelete, "/jobs", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	list, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

// --- polling ---

func TestPollLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/jobs/unknown/poll", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := f.store.Upsert(context.Background(), models.JobPatch{ID: "job-1"})
	require.NoError(t, err)

	rec = f.do(t, http.MethodPost, "/jobs/job-1/poll", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var ps pollStatus
	decodeData(t, rec, &ps)
	assert.Equal(t, jobs.StatePolling, ps.State)

	rec = f.do(t, http.MethodGet, "/jobs/job-1/poll", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/jobs/job-1/poll/refresh", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodDelete, "/jobs/job-1/poll", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/jobs/job-1/poll", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &ps)
	assert.Equal(t, jobs.StateCancelled, ps.State)

	rec = f.do(t, http.MethodPost, "/jobs/job-1/poll/refresh", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodDelete, "/jobs/job-1/poll", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPollStatus_ReportsTransportFailure(t *testing.T) {
	f := newFixture(t)
	f.remote.statusFn = func(string) (models.StatusResponse, error) {
		return models.StatusResponse{}, remote.ErrUnreachable
	}
	_, err := f.store.Upsert(context.Background(), models.JobPatch{ID: "job-1"})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/jobs/job-1/poll", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	h, ok := f.poller.Handle("job-1")
	require.True(t, ok)
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("poll did not stop")
	}

	rec = f.do(t, http.MethodGet, "/jobs/job-1/poll", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ps pollStatus
	decodeData(t, rec, &ps)
	assert.Equal(t, jobs.StateFailed, ps.State)
	assert.Contains(t, ps.Error, "remote service unreachable")
}

// --- results ---

func TestResults(t *testing.T) {
	f := newFixture(t)
	f.remote.resultsFn = func(jobID string) (models.ResultsResponse, error) {
		if jobID == "missing" {
			return models.ResultsResponse{}, &remote.HTTPError{StatusCode: 404, Body: "no such job"}
		}
		return models.ResultsResponse{JobID: jobID, TotalChanges: 4}, nil
	}

	rec := f.do(t, http.MethodGet, "/jobs/job-1/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res models.ResultsResponse
	decodeData(t, rec, &res)
	assert.Equal(t, 4, res.TotalChanges)

	rec = f.do(t, http.MethodGet, "/jobs/missing/results", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResults_502_Unreachable(t *testing.T) {
	f := newFixture(t)
	f.remote.resultsFn = func(string) (models.ResultsResponse, error) {
		return models.ResultsResponse{}, remote.ErrUnreachable
	}

	rec := f.do(t, http.MethodGet, "/jobs/job-1/results", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "REMOTE_UNAVAILABLE", errCode(t, rec))
}

// --- analytics ---

func TestAlerts(t *testing.T) {
	f := newFixture(t)
	f.completedJob(t, "job-a", models.ResultsSummary{DeforestationKm2: 320, UrbanExpansionKm2: 60})
	f.completedJob(t, "job-b", models.ResultsSummary{DeforestationKm2: 120})

	rec := f.do(t, http.MethodGet, "/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var alerts []models.Alert
	meta := decodeData(t, rec, &alerts)
	assert.Len(t, alerts, 3)
	assert.Equal(t, float64(3), meta["total"])

	rec = f.do(t, http.MethodGet, "/alerts?severity=critical", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &alerts)
	require.Len(t, alerts, 1)
	assert.Equal(t, "job-a", alerts[0].JobID)

	rec = f.do(t, http.MethodGet, "/alerts?severity=SEVERE", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	f.completedJob(t, "job-a", models.ResultsSummary{DeforestationKm2: 320, TotalAreaChangedKm2: 320, TotalChanges: 3})

	rec := f.do(t, http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got dashboardResponse
	decodeData(t, rec, &got)
	assert.Equal(t, 1, got.Stats.TotalScans)
	assert.Equal(t, 1, got.Stats.ActiveThreats)
	assert.Equal(t, 320.0, got.Stats.AreaMonitoredKm2)
	assert.Equal(t, 1, got.Threat.RecentJobs)
	assert.Equal(t, models.TrendIncreasing, got.Threat.Trend)
}

// --- events ---

func TestEvents_StreamsChanges(t *testing.T) {
	st := store.NewMemoryStore(store.Options{})
	srv := httptest.NewServer(NewEventsHandler(st, time.Hour))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)
	_, err = reader.ReadString('\n')
	require.NoError(t, err)

	_, err = st.Upsert(context.Background(), models.JobPatch{ID: "job-1"})
	require.NoError(t, err)

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: upsert\n", line)

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))

	var ev models.ChangeEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &ev))
	assert.Equal(t, "job-1", ev.JobID)
	assert.Equal(t, models.ChangeUpsert, ev.Kind)
}
