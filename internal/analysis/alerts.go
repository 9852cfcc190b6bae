package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sentineleye/pkg/models"
)

// alertNamespace scopes alert ids so they never collide with other SHA1 UUIDs.
var alertNamespace = uuid.MustParse("6f1c2d4e-8a7b-5c3d-9e0f-1a2b3c4d5e6f")

// AlertID derives a stable id from the job and alert type. Regenerating alerts
// from the same history always yields the same ids.
func AlertID(jobID string, t models.AlertType) string {
	return uuid.NewSHA1(alertNamespace, []byte(jobID+"/"+string(t))).String()
}

// GenerateAlerts applies the threshold rules to every completed job that has
// a results summary. Jobs without a summary are skipped. The result is sorted
// newest first; ties go to the higher severity, then to the id.
// Returns an empty slice for no alerts (never nil).
func GenerateAlerts(jobs []models.Job) []models.Alert {
	alerts := []models.Alert{}

	for _, j := range completedWithSummary(jobs) {
		s := *j.ResultsSummary
		region := j.Coordinates.Label()

		switch {
		case s.DeforestationKm2 >= DeforestationCriticalKm2:
			alerts = append(alerts, newAlert(j, models.SeverityCritical, models.AlertDeforestation,
				"Critical deforestation detected",
				fmt.Sprintf("%.1f km² of forest loss detected near %s between %d and %d.",
					s.DeforestationKm2, region, j.StartYear, j.EndYear),
				[]string{
					"Dispatch a field team to verify the cleared area",
					"Notify the regional environmental protection agency",
					"Schedule a follow-up scan within 30 days",
				}))
		case s.DeforestationKm2 >= DeforestationWarningKm2:
			alerts = append(alerts, newAlert(j, models.SeverityWarning, models.AlertDeforestation,
				"Significant deforestation detected",
				fmt.Sprintf("%.1f km² of forest loss detected near %s between %d and %d.",
					s.DeforestationKm2, region, j.StartYear, j.EndYear),
				[]string{
					"Review high-resolution imagery for the affected area",
					"Schedule a follow-up scan within 90 days",
				}))
		}

		if s.UrbanExpansionKm2 >= UrbanExpansionWarningKm2 {
			alerts = append(alerts, newAlert(j, models.SeverityWarning, models.AlertUrbanExpansion,
				"Rapid urban expansion detected",
				fmt.Sprintf("%.1f km² of new built-up area detected near %s between %d and %d.",
					s.UrbanExpansionKm2, region, j.StartYear, j.EndYear),
				[]string{
					"Cross-check expansion against approved zoning plans",
					"Assess pressure on adjacent protected areas",
				}))
		}
	}

	sort.SliceStable(alerts, func(i, k int) bool {
		a, b := alerts[i], alerts[k]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		return a.ID < b.ID
	})
	return alerts
}

func newAlert(j models.Job, sev models.Severity, t models.AlertType, title, desc string, recs []string) models.Alert {
	return models.Alert{
		ID:              AlertID(j.ID, t),
		JobID:           j.ID,
		Severity:        sev,
		Type:            t,
		Title:           title,
		Description:     desc,
		RegionLabel:     j.Coordinates.Label(),
		Recommendations: recs,
		CreatedAt:       j.CreatedAt,
	}
}

// SeverityAll disables severity filtering.
const SeverityAll = "ALL"

// FilterAlerts keeps the alerts with the given severity. An empty severity or
// SeverityAll returns alerts unchanged.
func FilterAlerts(alerts []models.Alert, severity string) []models.Alert {
	if severity == "" || severity == SeverityAll {
		return alerts
	}
	out := []models.Alert{}
	for _, a := range alerts {
		if string(a.Severity) == severity {
			out = append(out, a)
		}
	}
	return out
}

// ParseSeverityFilter normalizes a user supplied severity filter. Casing and
// surrounding whitespace are ignored; empty means SeverityAll.
func ParseSeverityFilter(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch {
	case s == "" || s == SeverityAll:
		return SeverityAll, nil
	case models.Severity(s).Rank() >= 0:
		return s, nil
	}
	return "", fmt.Errorf("severity must be one of ALL, LOW, WARNING, CRITICAL; got %q", s)
}
