package analysis

import (
	"time"

	"github.com/kiranshivaraju/sentineleye/pkg/models"
)

const (
	RecentChangesWindow = 7 * 24 * time.Hour
	ThreatWindow        = 30 * 24 * time.Hour
)

// ComputeDashboard aggregates the completed jobs. recentChanges counts the
// changes of jobs updated within the trailing 7 days of now.
func ComputeDashboard(jobs []models.Job, now time.Time) models.DashboardStats {
	var stats models.DashboardStats
	cutoff := now.Add(-RecentChangesWindow)

	for _, j := range completedWithSummary(jobs) {
		s := *j.ResultsSummary
		stats.TotalScans++
		if IsHighSeverity(s) {
			stats.ActiveThreats++
		}
		stats.AreaMonitoredKm2 += s.TotalAreaChangedKm2
		if !j.UpdatedAt.Before(cutoff) && !j.UpdatedAt.After(now) {
			stats.RecentChanges += s.TotalChanges
		}
	}
	return stats
}

// ComputeThreat compares the high severity rate of jobs completed in the last
// 30 days against the 30 days before that. Windows are half-open on the older
// side: recent is [now-30d, now], previous is [now-60d, now-30d).
func ComputeThreat(jobs []models.Job, now time.Time) models.ThreatMetrics {
	var m models.ThreatMetrics
	recentStart := now.Add(-ThreatWindow)
	previousStart := recentStart.Add(-ThreatWindow)

	for _, j := range completedWithSummary(jobs) {
		t := j.UpdatedAt
		high := IsHighSeverity(*j.ResultsSummary)
		switch {
		case t.After(now):
		case !t.Before(recentStart):
			m.RecentJobs++
			if high {
				m.RecentHighSeverity++
			}
		case !t.Before(previousStart):
			m.PreviousJobs++
			if high {
				m.PreviousHighSeverity++
			}
		}
	}

	m.RecentRate = rate(m.RecentHighSeverity, m.RecentJobs)
	m.PreviousRate = rate(m.PreviousHighSeverity, m.PreviousJobs)
	m.Trend = ClassifyTrend(m.RecentRate, m.PreviousRate)
	return m
}

// ClassifyTrend applies the TrendBand hysteresis so small swings read Stable.
func ClassifyTrend(recent, previous float64) models.Trend {
	switch {
	case recent > previous+TrendBand:
		return models.TrendIncreasing
	case recent+TrendBand < previous:
		return models.TrendDecreasing
	}
	return models.TrendStable
}

func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
