// Package main is the entrypoint for the SentinelEye API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/sentineleye/internal/api"
	"github.com/kiranshivaraju/sentineleye/internal/api/handler"
	mw "github.com/kiranshivaraju/sentineleye/internal/api/middleware"
	"github.com/kiranshivaraju/sentineleye/internal/api/response"
	"github.com/kiranshivaraju/sentineleye/internal/cache"
	"github.com/kiranshivaraju/sentineleye/internal/config"
	"github.com/kiranshivaraju/sentineleye/internal/jobs"
	"github.com/kiranshivaraju/sentineleye/internal/logging"
	"github.com/kiranshivaraju/sentineleye/internal/remote"
	"github.com/kiranshivaraju/sentineleye/internal/store"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := logging.New(os.Stdout, os.Getenv("SENTINEL_ENV") == "development")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "store_backend", cfg.Store.Backend, "env", cfg.Server.Env)

	// 2. Open the job store
	st, err := store.New(ctx, cfg, "migrations")
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	// 3. Optional Redis cache for results and rate limiting
	var resultsCache cache.Cache
	var rateLimit *mw.RateLimit
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")
		resultsCache = redisCache
		rateLimit = mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMin)
	}

	// 4. Core services
	rc := remote.NewHTTPClient(cfg.Remote.BaseURL, cfg.Remote.Timeout)
	results := jobs.NewResultsSource(rc, resultsCache, cfg.Redis.ResultsCacheTTL)
	poller := jobs.NewPoller(rc, st, jobs.Options{
		Interval:   cfg.Poll.Interval,
		SlowAfter:  cfg.Poll.SlowAfter,
		StuckAfter: cfg.Poll.StuckAfter,
		Results:    results,
		Logger:     slog.Default(),
	})
	submitter := jobs.NewSubmitter(rc, st, jobs.WithResultsSource(results))

	g, gctx := errgroup.WithContext(ctx)

	// 5. Build router with dependencies. Pollers run under gctx so they
	// outlive the submitting request but stop with the server.
	auth := mw.NewAuth(cfg.Auth.APIKeyHashes)
	if !auth.Enabled() {
		slog.Warn("no API keys configured, authentication disabled")
	}

	router := api.NewRouter(api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(st, rc, resultsCache),

		SubmitJob:  handler.NewSubmitJobHandler(submitter, poller, gctx),
		ListJobs:   handler.NewListJobsHandler(st),
		ClearJobs:  handler.NewClearJobsHandler(st),
		GetJob:     handler.NewGetJobHandler(st),
		JobResults: handler.NewResultsHandler(results),

		StartPoll:   handler.NewStartPollHandler(st, poller, gctx),
		PollStatus:  handler.NewPollStatusHandler(poller),
		RefreshPoll: handler.NewRefreshPollHandler(poller),
		CancelPoll:  handler.NewCancelPollHandler(poller),

		Alerts:    handler.NewAlertsHandler(st),
		Dashboard: handler.NewDashboardHandler(st, nil),
		Events:    handler.NewEventsHandler(st, 0),
	})

	// 6. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := newHTTPServer(addr, router)

	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Relay other processes' writes to local subscribers.
	if l, ok := st.(store.Listener); ok {
		g.Go(func() error {
			if err := l.Listen(gctx); err != nil && gctx.Err() == nil {
				return fmt.Errorf("store listener: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
		if err := poller.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("poller shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped gracefully")
	return nil
}

// newHTTPServer builds the API server. Request contexts are cancelled as soon
// as Shutdown starts so long-lived event streams let the drain finish.
func newHTTPServer(addr string, h http.Handler) *http.Server {
	baseCtx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}

type pinger interface {
	Ping(ctx context.Context) error
}

type readier interface {
	Ready(ctx context.Context) error
}

// healthHandler checks store, remote service and (optional) cache
// connectivity.
func healthHandler(s pinger, rc readier, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"store":  "ok",
			"remote": "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["store"] = "degraded"
		}
		if err := rc.Ready(r.Context()); err != nil {
			checks["remote"] = "degraded"
		}
		if c != nil {
			checks["cache"] = "ok"
			if err := c.Ping(r.Context()); err != nil {
				checks["cache"] = "degraded"
			}
		}

		for _, v := range checks {
			if v != "ok" {
				response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
					"One or more services degraded", checks)
				return
			}
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
