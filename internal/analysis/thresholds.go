// Package analysis derives alerts and dashboard metrics from the job history.
// Every function here is pure: the same jobs (and the same now) always give
// the same output.
package analysis

import "github.com/kiranshivaraju/sentineleye/pkg/models"

// Area thresholds in km².
const (
	DeforestationCriticalKm2 = 300.0
	DeforestationWarningKm2  = 100.0
	UrbanExpansionWarningKm2 = 50.0
	EncroachmentHighKm2      = 30.0
	TotalChangeHighKm2       = 400.0
)

// TrendBand is the hysteresis band applied when comparing window rates.
const TrendBand = 0.05

// IsHighSeverity reports whether a results summary meets any one of the high
// severity thresholds.
func IsHighSeverity(s models.ResultsSummary) bool {
	return s.DeforestationKm2 >= DeforestationCriticalKm2 ||
		s.UrbanExpansionKm2 >= UrbanExpansionWarningKm2 ||
		s.EncroachmentKm2 >= EncroachmentHighKm2 ||
		s.TotalAreaChangedKm2 >= TotalChangeHighKm2
}

// completedWithSummary yields the jobs the derivations operate on.
func completedWithSummary(jobs []models.Job) []models.Job {
	out := make([]models.Job, 0, len(jobs))
	for _, j := range jobs {
		if j.Status == models.JobStatusCompleted && j.ResultsSummary != nil {
			out = append(out, j)
		}
	}
	return out
}
