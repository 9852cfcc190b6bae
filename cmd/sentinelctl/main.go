// Command sentinelctl drives the SentinelEye job core from a terminal. It
// shares the job store with the server, so history written by either is
// visible to both when a shared backend is configured. The memory backend is
// replaced by the local sqlite file so history outlives each command.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/sentineleye/internal/config"
	"github.com/kiranshivaraju/sentineleye/internal/jobs"
	"github.com/kiranshivaraju/sentineleye/internal/logging"
	"github.com/kiranshivaraju/sentineleye/internal/remote"
	"github.com/kiranshivaraju/sentineleye/internal/store"
	"github.com/spf13/cobra"
)

// app carries what the commands need. Fields left nil are built from the
// environment before the first command runs.
type app struct {
	out    io.Writer
	store  store.Store
	remote remote.Client
	poll   jobs.Options
	now    func() time.Time

	verbose bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{out: os.Stdout}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		slog.Error("sentinelctl failed", "err", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:               "sentinelctl",
		Short:             "Submit satellite change detection jobs and inspect their history",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.init,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.store.Close()
		},
	}
	root.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "verbose logging")
	root.SetOut(a.out)

	root.AddCommand(
		newSubmitCmd(a),
		newWatchCmd(a),
		newHistoryCmd(a),
		newAlertsCmd(a),
		newDashboardCmd(a),
		newClearCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command, _ []string) error {
	slog.SetDefault(logging.New(os.Stderr, a.verbose))
	if a.now == nil {
		a.now = time.Now
	}
	if a.store != nil && a.remote != nil {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.poll = jobs.Options{
		Interval:   cfg.Poll.Interval,
		SlowAfter:  cfg.Poll.SlowAfter,
		StuckAfter: cfg.Poll.StuckAfter,
	}
	if a.remote == nil {
		a.remote = remote.NewHTTPClient(cfg.Remote.BaseURL, cfg.Remote.Timeout)
	}
	if a.store == nil {
		// History in process memory would be gone when the command exits.
		if cfg.Store.Backend == config.BackendMemory {
			cfg.Store.Backend = config.BackendSQLite
		}
		a.store, err = store.New(cmd.Context(), cfg, "migrations")
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
	}
	return nil
}
