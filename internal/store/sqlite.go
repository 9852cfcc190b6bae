package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sentineleye/pkg/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the history as one JSON array in a local SQLite file. It
// is the durable single-machine backend: several processes may share the file
// but change events only reach subscribers in the writing process.
type SQLiteStore struct {
	db     *sql.DB
	key    string
	opts   Options
	origin string
	notify *notifier
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path, key string, opts Options) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS job_history (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create job_history table: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		key:    key,
		opts:   opts.withDefaults(),
		origin: uuid.NewString(),
		notify: newNotifier(),
	}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Upsert(ctx context.Context, patch models.JobPatch) (models.Job, error) {
	if patch.ID == "" {
		return models.Job{}, ErrInvalidJobID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Job{}, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	// Write first so the file lock is taken before the history is read.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO job_history (key, value) VALUES (?, '[]')`, s.key); err != nil {
		return models.Job{}, fmt.Errorf("lock job history: %w", err)
	}

	history, err := s.read(ctx, tx)
	if err != nil {
		return models.Job{}, err
	}

	var merged models.Job
	history, merged = upsertInto(history, patch, s.opts.Now(), s.opts.Cap)
	payload, err := json.Marshal(history)
	if err != nil {
		return models.Job{}, fmt.Errorf("encode job history: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE job_history SET value = ? WHERE key = ?`, string(payload), s.key); err != nil {
		return models.Job{}, fmt.Errorf("upsert job %s: %w", patch.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return models.Job{}, fmt.Errorf("commit upsert: %w", err)
	}

	s.notify.publish(models.ChangeEvent{
		Kind:   models.ChangeUpsert,
		JobID:  merged.ID,
		Origin: s.origin,
		At:     merged.UpdatedAt,
	})
	return merged, nil
}

func (s *SQLiteStore) Get(ctx context.Context, jobID string) (models.Job, bool, error) {
	history, err := s.List(ctx)
	if err != nil {
		return models.Job{}, false, err
	}
	for _, j := range history {
		if j.ID == jobID {
			return j, true, nil
		}
	}
	return models.Job{}, false, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]models.Job, error) {
	history, err := s.read(ctx, s.db)
	if err != nil {
		return nil, err
	}
	SortNewest(history)
	return history, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM job_history WHERE key = ?`, s.key); err != nil {
		return fmt.Errorf("clear job history: %w", err)
	}
	s.notify.publish(models.ChangeEvent{Kind: models.ChangeClear, Origin: s.origin, At: s.opts.Now().UTC()})
	return nil
}

func (s *SQLiteStore) Subscribe(fn func(models.ChangeEvent)) func() {
	return s.notify.subscribe(fn)
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) read(ctx context.Context, q queryer) ([]models.Job, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT value FROM job_history WHERE key = ?`, s.key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []models.Job{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read job history: %w", err)
	}

	history := []models.Job{}
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, fmt.Errorf("decode job history: %w", err)
	}
	return history, nil
}

var _ Store = (*SQLiteStore)(nil)
