package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/sentineleye/internal/api/middleware"
	"github.com/kiranshivaraju/sentineleye/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
// RateLimit is nil when no Redis cache is configured.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	SubmitJob  http.HandlerFunc
	ListJobs   http.HandlerFunc
	ClearJobs  http.HandlerFunc
	GetJob     http.HandlerFunc
	JobResults http.HandlerFunc

	StartPoll   http.HandlerFunc
	PollStatus  http.HandlerFunc
	RefreshPoll http.HandlerFunc
	CancelPoll  http.HandlerFunc

	Alerts    http.HandlerFunc
	Dashboard http.HandlerFunc
	Events    http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/api/v1/jobs", orNotImplemented(deps.SubmitJob))
		r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobs))
		r.Delete("/api/v1/jobs", orNotImplemented(deps.ClearJobs))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJob))
		r.Get("/api/v1/jobs/{jobID}/results", orNotImplemented(deps.JobResults))

		r.Post("/api/v1/jobs/{jobID}/poll", orNotImplemented(deps.StartPoll))
		r.Get("/api/v1/jobs/{jobID}/poll", orNotImplemented(deps.PollStatus))
		r.Delete("/api/v1/jobs/{jobID}/poll", orNotImplemented(deps.CancelPoll))
		r.Post("/api/v1/jobs/{jobID}/poll/refresh", orNotImplemented(deps.RefreshPoll))

		r.Get("/api/v1/alerts", orNotImplemented(deps.Alerts))
		r.Get("/api/v1/dashboard", orNotImplemented(deps.Dashboard))
		r.Get("/api/v1/events", orNotImplemented(deps.Events))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
