package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/sentineleye/internal/api/response"
	"github.com/kiranshivaraju/sentineleye/internal/history"
	"github.com/kiranshivaraju/sentineleye/internal/jobs"
	"github.com/kiranshivaraju/sentineleye/pkg/models"
)

// NewSubmitJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
// Polling starts under pollCtx so it outlives the request.
func NewSubmitJobHandler(sub JobSubmitter, poller JobPoller, pollCtx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		job, err := sub.Submit(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}

		poller.Start(pollCtx, job.ID)
		response.Accepted(w, job)
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
func NewListJobsHandler(store JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter, err := history.ParseFilter(q.Get("q"), q.Get("status"), q.Get("sort"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		all, err := store.List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}

		matched := history.Apply(all, filter)
		selected, _ := history.DefaultSelection(matched)
		response.List(w, matched, response.ListMeta{Total: len(matched), Selected: selected})
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(store JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, found, err := store.Get(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !found {
			response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Job not found", nil)
			return
		}
		response.JSON(w, job)
	}
}

// pollStatus is the view of one polling task.
type pollStatus struct {
	JobID      string          `json:"job_id"`
	State      jobs.State      `json:"state"`
	Error      string          `json:"error,omitempty"`
	Advisories []jobs.Advisory `json:"advisories"`
}

func newPollStatus(h *jobs.Handle) pollStatus {
	ps := pollStatus{JobID: h.JobID(), State: h.State(), Advisories: h.Advisories()}
	if err := h.Err(); err != nil {
		ps.Error = err.Error()
	}
	if ps.Advisories == nil {
		ps.Advisories = []jobs.Advisory{}
	}
	return ps
}

// NewStartPollHandler returns an http.HandlerFunc for POST
// /api/v1/jobs/{jobID}/poll. A task already running for the job is replaced.
func NewStartPollHandler(store JobReader, poller JobPoller, pollCtx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		if _, found, err := store.Get(r.Context(), jobID); err != nil {
			writeError(w, r, err)
			return
		} else if !found {
			response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Job not found", nil)
			return
		}

		h := poller.Start(pollCtx, jobID)
		response.Accepted(w, newPollStatus(h))
	}
}

// NewPollStatusHandler returns an http.HandlerFunc for GET
// /api/v1/jobs/{jobID}/poll. A finished task reports its final state and
// error until a new poll is started.
func NewPollStatusHandler(poller JobPoller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := poller.Handle(chi.URLParam(r, "jobID"))
		if !ok {
			response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Job is not being polled", nil)
			return
		}
		response.JSON(w, newPollStatus(h))
	}
}

// NewRefreshPollHandler returns an http.HandlerFunc for POST
// /api/v1/jobs/{jobID}/poll/refresh.
func NewRefreshPollHandler(poller JobPoller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := poller.Handle(chi.URLParam(r, "jobID"))
		if !ok {
			response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Job is not being polled", nil)
			return
		}
		if h.State().Finished() {
			response.Error(w, http.StatusConflict, "POLL_FINISHED", "Polling has stopped; start a new poll", nil)
			return
		}
		h.Refresh()
		response.Accepted(w, newPollStatus(h))
	}
}

// NewCancelPollHandler returns an http.HandlerFunc for DELETE
// /api/v1/jobs/{jobID}/poll.
func NewCancelPollHandler(poller JobPoller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !poller.Cancel(chi.URLParam(r, "jobID")) {
			response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Job is not being polled", nil)
			return
		}
		response.NoContent(w)
	}
}

// NewResultsHandler returns an http.HandlerFunc for GET
// /api/v1/jobs/{jobID}/results.
func NewResultsHandler(results ResultsGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := results.Get(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, res)
	}
}

// NewClearJobsHandler returns an http.HandlerFunc for DELETE /api/v1/jobs.
func NewClearJobsHandler(store JobClearer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Clear(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}
