package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/sentineleye/internal/config"
)

// New builds the Store selected by cfg.Store.Backend. For the postgres
// backend it connects and applies migrations from migrationsDir first.
func New(ctx context.Context, cfg *config.Config, migrationsDir string) (Store, error) {
	opts := Options{Cap: cfg.Store.HistoryCap}

	switch cfg.Store.Backend {
	case config.BackendMemory:
		return NewMemoryStore(opts), nil

	case config.BackendRedis:
		s, err := NewRedisStore(cfg.Redis.URL, cfg.Store.HistoryKey, opts)
		if err != nil {
			return nil, err
		}
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		slog.InfoContext(ctx, "job store connected", "backend", cfg.Store.Backend, "key", cfg.Store.HistoryKey)
		return s, nil

	case config.BackendSQLite:
		s, err := NewSQLiteStore(ctx, cfg.Store.SQLitePath, cfg.Store.HistoryKey, opts)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "job store opened", "backend", cfg.Store.Backend, "path", cfg.Store.SQLitePath)
		return s, nil

	case config.BackendPostgres:
		pool, err := Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := RunMigrations(cfg.Database.URL, migrationsDir); err != nil {
			pool.Close()
			return nil, err
		}
		slog.InfoContext(ctx, "job store connected", "backend", cfg.Store.Backend)
		return NewPostgresStore(pool, opts), nil
	}

	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
