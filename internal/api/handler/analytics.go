package handler

import (
	"net/http"
	"time"

	"github.com/kiranshivaraju/sentineleye/internal/analysis"
	"github.com/kiranshivaraju/sentineleye/internal/api/response"
	"github.com/kiranshivaraju/sentineleye/pkg/models"
)

// NewAlertsHandler returns an http.HandlerFunc for GET /api/v1/alerts.
// Alerts are regenerated from the current history on every request.
func NewAlertsHandler(store JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		severity, err := analysis.ParseSeverityFilter(r.URL.Query().Get("severity"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		list, err := store.List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}

		alerts := analysis.FilterAlerts(analysis.GenerateAlerts(list), severity)
		response.List(w, alerts, response.ListMeta{Total: len(alerts)})
	}
}

type dashboardResponse struct {
	Stats  models.DashboardStats `json:"stats"`
	Threat models.ThreatMetrics  `json:"threat"`
}

// NewDashboardHandler returns an http.HandlerFunc for GET /api/v1/dashboard.
func NewDashboardHandler(store JobReader, now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}

		t := now()
		response.JSON(w, dashboardResponse{
			Stats:  analysis.ComputeDashboard(list, t),
			Threat: analysis.ComputeThreat(list, t),
		})
	}
}
