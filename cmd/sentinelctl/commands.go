package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kiranshivaraju/sentineleye/internal/analysis"
	"github.com/kiranshivaraju/sentineleye/internal/history"
	"github.com/kiranshivaraju/sentineleye/internal/jobs"
	"github.com/kiranshivaraju/sentineleye/pkg/models"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newSubmitCmd(a *app) *cobra.Command {
	var (
		req   models.SubmitRequest
		types []string
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a change detection job for a location and year range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, t := range types {
				req.ChangeTypes = append(req.ChangeTypes, models.ChangeType(t))
			}

			job, err := jobs.NewSubmitter(a.remote, a.store).Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "submitted %s (%s)\n", job.ID, job.Status)

			if !watch {
				return nil
			}
			return a.watch(cmd.Context(), job.ID)
		},
	}
	cmd.Flags().Float64Var(&req.Coordinates.Lat, "lat", 0, "latitude of the area of interest")
	cmd.Flags().Float64Var(&req.Coordinates.Lon, "lon", 0, "longitude of the area of interest")
	cmd.Flags().IntVar(&req.StartYear, "start-year", time.Now().Year()-3, "first year of the comparison")
	cmd.Flags().IntVar(&req.EndYear, "end-year", time.Now().Year(), "last year of the comparison")
	cmd.Flags().StringSliceVar(&types, "types", []string{string(models.ChangeDeforestation)},
		"change types to detect (deforestation, urban_expansion, encroachment)")
	cmd.Flags().BoolVar(&watch, "watch", false, "poll the job until it finishes")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch JOB_ID",
		Short: "Poll a job until it completes, fails or is interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.watch(cmd.Context(), args[0])
		},
	}
}

// watch polls jobID and prints every stored change and advisory until the
// task stops. A failed job is returned as an error.
func (a *app) watch(ctx context.Context, jobID string) error {
	poller := jobs.NewPoller(a.remote, a.store, a.poll)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = poller.Shutdown(shutdownCtx)
	}()

	updates := make(chan struct{}, 1)
	unsubscribe := a.store.Subscribe(func(ev models.ChangeEvent) {
		if ev.JobID != jobID {
			return
		}
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	advisories := make(chan jobs.Advisory, 2)
	g, gctx := errgroup.WithContext(ctx)
	h := poller.Start(gctx, jobID, jobs.WithAdvisoryFunc(func(adv jobs.Advisory) {
		select {
		case advisories <- adv:
		default:
		}
	}))

	g.Go(func() error { return h.Wait(gctx) })
	g.Go(func() error {
		var last string
		for {
			select {
			case <-h.Done():
				return nil
			case <-gctx.Done():
				return nil
			case adv := <-advisories:
				printAdvisory(a.out, adv)
			case <-updates:
				job, found, err := a.store.Get(gctx, jobID)
				if err != nil || !found {
					continue
				}
				if line := progressLine(job); line != last {
					fmt.Fprintln(a.out, line)
					last = line
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		var failure *jobs.RemoteJobFailure
		if errors.As(err, &failure) {
			fmt.Fprintf(a.out, "job %s failed: %s\n", jobID, failure.Message)
		}
		return err
	}

	job, found, err := a.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("job %s is not in the history", jobID)
	}
	printJob(a.out, job)
	printAlerts(a.out, analysis.GenerateAlerts([]models.Job{job}))
	return nil
}

func newHistoryCmd(a *app) *cobra.Command {
	var query, status, order string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := history.ParseFilter(query, status, order)
			if err != nil {
				return err
			}
			list, err := a.store.List(cmd.Context())
			if err != nil {
				return err
			}
			printHistory(a.out, history.Apply(list, filter))
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "search job id, status, message, region or change type")
	cmd.Flags().StringVar(&status, "status", history.StatusAll, "only jobs in this status")
	cmd.Flags().StringVar(&order, "sort", string(history.SortNewest), "NEWEST or OLDEST")
	return cmd
}

func newAlertsCmd(a *app) *cobra.Command {
	var severity string
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Show alerts derived from completed jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sev, err := analysis.ParseSeverityFilter(severity)
			if err != nil {
				return err
			}
			list, err := a.store.List(cmd.Context())
			if err != nil {
				return err
			}
			printAlerts(a.out, analysis.FilterAlerts(analysis.GenerateAlerts(list), sev))
			return nil
		},
	}
	cmd.Flags().StringVar(&severity, "severity", analysis.SeverityAll, "ALL, LOW, WARNING or CRITICAL")
	return cmd
}

func newDashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show headline statistics and the threat trend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := a.store.List(cmd.Context())
			if err != nil {
				return err
			}
			now := a.now()
			printDashboard(a.out, analysis.ComputeDashboard(list, now), analysis.ComputeThreat(list, now))
			return nil
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the whole job history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear the history without --yes")
			}
			if err := a.store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "history cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
