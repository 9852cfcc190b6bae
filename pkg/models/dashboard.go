package models

// DashboardStats are the headline aggregates shown on the dashboard.
type DashboardStats struct {
	TotalScans       int     `json:"total_scans"`
	ActiveThreats    int     `json:"active_threats"`
	AreaMonitoredKm2 float64 `json:"area_monitored_km2"`
	RecentChanges    int     `json:"recent_changes"`
}

// Trend is the direction of the high-severity rate between two windows.
type Trend string

const (
	TrendIncreasing Trend = "Increasing"
	TrendDecreasing Trend = "Decreasing"
	TrendStable     Trend = "Stable"
)

// ThreatMetrics compares the trailing 30 days against the 30 days before.
type ThreatMetrics struct {
	RecentJobs           int     `json:"recent_jobs"`
	PreviousJobs         int     `json:"previous_jobs"`
	RecentHighSeverity   int     `json:"recent_high_severity"`
	PreviousHighSeverity int     `json:"previous_high_severity"`
	RecentRate           float64 `json:"recent_rate"`
	PreviousRate         float64 `json:"previous_rate"`
	Trend                Trend   `json:"trend"`
}
