package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kiranshivaraju/sentineleye/internal/jobs"
	"github.com/kiranshivaraju/sentineleye/pkg/models"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func progressLine(j models.Job) string {
	line := fmt.Sprintf("%-10s %3d%%", j.Status, j.Progress)
	if j.Message != "" {
		line += "  " + j.Message
	}
	return line
}

func printAdvisory(w io.Writer, adv jobs.Advisory) {
	fmt.Fprintf(w, "! %s\n", adv.Message)
	if len(adv.Actions) > 0 {
		fmt.Fprintf(w, "  job id: %s  suggested: %s\n", adv.JobID, strings.Join(adv.Actions, ", "))
	}
}

func printJob(w io.Writer, j models.Job) {
	tw := newTable(w)
	fmt.Fprintf(tw, "job\t%s\n", j.ID)
	fmt.Fprintf(tw, "status\t%s (%d%%)\n", j.Status, j.Progress)
	fmt.Fprintf(tw, "region\t%s\n", j.Coordinates.Label())
	fmt.Fprintf(tw, "years\t%d-%d\n", j.StartYear, j.EndYear)
	if s := j.ResultsSummary; s != nil {
		fmt.Fprintf(tw, "changed area\t%.1f km²\n", s.TotalAreaChangedKm2)
		fmt.Fprintf(tw, "deforestation\t%.1f km²\n", s.DeforestationKm2)
		fmt.Fprintf(tw, "urban expansion\t%.1f km²\n", s.UrbanExpansionKm2)
		fmt.Fprintf(tw, "encroachment\t%.1f km²\n", s.EncroachmentKm2)
		fmt.Fprintf(tw, "changes\t%d\n", s.TotalChanges)
	}
	tw.Flush()
}

func printHistory(w io.Writer, list []models.Job) {
	if len(list) == 0 {
		fmt.Fprintln(w, "no jobs")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "JOB ID\tSTATUS\tPROGRESS\tREGION\tYEARS\tCREATED")
	for _, j := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d%%\t%s\t%d-%d\t%s\n",
			j.ID, j.Status, j.Progress, j.Coordinates.Label(), j.StartYear, j.EndYear,
			j.CreatedAt.Local().Format(time.DateTime))
	}
	tw.Flush()
}

func printAlerts(w io.Writer, alerts []models.Alert) {
	if len(alerts) == 0 {
		fmt.Fprintln(w, "no alerts")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "SEVERITY\tTYPE\tJOB ID\tREGION\tTITLE")
	for _, a := range alerts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.Severity, a.Type, a.JobID, a.RegionLabel, a.Title)
	}
	tw.Flush()
}

func printDashboard(w io.Writer, stats models.DashboardStats, threat models.ThreatMetrics) {
	tw := newTable(w)
	fmt.Fprintf(tw, "total scans\t%d\n", stats.TotalScans)
	fmt.Fprintf(tw, "active threats\t%d\n", stats.ActiveThreats)
	fmt.Fprintf(tw, "area monitored\t%.1f km²\n", stats.AreaMonitoredKm2)
	fmt.Fprintf(tw, "recent changes\t%d\n", stats.RecentChanges)
	fmt.Fprintf(tw, "threat trend\t%s (%.0f%% vs %.0f%%)\n", threat.Trend, threat.RecentRate*100, threat.PreviousRate*100)
	tw.Flush()
}
