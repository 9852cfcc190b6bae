package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/sentineleye/pkg/models"
)

// NotifyChannel is the LISTEN/NOTIFY channel carrying change events.
const NotifyChannel = "sentineleye_jobs"

const jobColumns = `job_id, status, progress, message, lat, lon, start_year, end_year,
	change_types, results_summary, created_at, updated_at`

// PostgresStore implements Store using pgx/v5. Change events travel over
// LISTEN/NOTIFY so every process using the database sees them.
type PostgresStore struct {
	pool   *pgxpool.Pool
	opts   Options
	origin string
	notify *notifier
}

// NewPostgresStore creates a new PostgresStore. The store takes ownership of
// pool and closes it in Close.
func NewPostgresStore(pool *pgxpool.Pool, opts Options) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		opts:   opts.withDefaults(),
		origin: uuid.NewString(),
		notify: newNotifier(),
	}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Upsert(ctx context.Context, patch models.JobPatch) (models.Job, error) {
	if patch.ID == "" {
		return models.Job{}, ErrInvalidJobID
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Job{}, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	var existing *models.Job
	current, err := scanJob(tx.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE job_id = $1 FOR UPDATE`, patch.ID))
	switch {
	case err == nil:
		existing = &current
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return models.Job{}, fmt.Errorf("get job for upsert: %w", err)
	}

	merged := Merge(existing, patch, s.opts.Now())

	var summary []byte
	if merged.ResultsSummary != nil {
		if summary, err = json.Marshal(merged.ResultsSummary); err != nil {
			return models.Job{}, fmt.Errorf("encode results summary: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (job_id) DO UPDATE SET
		   status = EXCLUDED.status,
		   progress = EXCLUDED.progress,
		   message = EXCLUDED.message,
		   lat = EXCLUDED.lat,
		   lon = EXCLUDED.lon,
		   start_year = EXCLUDED.start_year,
		   end_year = EXCLUDED.end_year,
		   change_types = EXCLUDED.change_types,
		   results_summary = EXCLUDED.results_summary,
		   updated_at = EXCLUDED.updated_at`,
		merged.ID, string(merged.Status), merged.Progress, merged.Message,
		merged.Coordinates.Lat, merged.Coordinates.Lon, merged.StartYear, merged.EndYear,
		changeTypeStrings(merged.ChangeTypes), summary, merged.CreatedAt, merged.UpdatedAt)
	if err != nil {
		return models.Job{}, fmt.Errorf("upsert job: %w", err)
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM jobs WHERE job_id IN (
		   SELECT job_id FROM jobs ORDER BY updated_at DESC, job_id ASC OFFSET $1
		 )`, s.opts.Cap)
	if err != nil {
		return models.Job{}, fmt.Errorf("trim job history: %w", err)
	}

	ev := models.ChangeEvent{Kind: models.ChangeUpsert, JobID: merged.ID, Origin: s.origin, At: merged.UpdatedAt}
	if err := notifyTx(ctx, tx, ev); err != nil {
		return models.Job{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Job{}, fmt.Errorf("commit upsert: %w", err)
	}

	s.notify.publish(ev)
	return merged, nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (models.Job, bool, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, false, nil
	}
	if err != nil {
		return models.Job{}, false, fmt.Errorf("get job: %w", err)
	}
	return j, true, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY updated_at DESC, job_id ASC LIMIT $1`, s.opts.Cap)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM jobs`); err != nil {
		return fmt.Errorf("clear jobs: %w", err)
	}

	ev := models.ChangeEvent{Kind: models.ChangeClear, Origin: s.origin, At: s.opts.Now().UTC()}
	if err := notifyTx(ctx, tx, ev); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}

	s.notify.publish(ev)
	return nil
}

func (s *PostgresStore) Subscribe(fn func(models.ChangeEvent)) func() {
	return s.notify.subscribe(fn)
}

// Listen holds a dedicated connection on NotifyChannel and relays events from
// other writers to local subscribers until ctx is done.
func (s *PostgresStore) Listen(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}

		var ev models.ChangeEvent
		if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil {
			slog.WarnContext(ctx, "dropping malformed change event", "channel", n.Channel, "error", err)
			continue
		}
		if ev.Origin == s.origin {
			continue
		}
		s.notify.publish(ev)
	}
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func notifyTx(ctx context.Context, tx pgx.Tx, ev models.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, string(payload)); err != nil {
		return fmt.Errorf("notify change: %w", err)
	}
	return nil
}

func scanJob(row pgx.Row) (models.Job, error) {
	var (
		j       models.Job
		status  string
		types   []string
		summary []byte
	)
	err := row.Scan(&j.ID, &status, &j.Progress, &j.Message,
		&j.Coordinates.Lat, &j.Coordinates.Lon, &j.StartYear, &j.EndYear,
		&types, &summary, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return models.Job{}, err
	}

	j.Status = models.JobStatus(status)
	j.ChangeTypes = make([]models.ChangeType, 0, len(types))
	for _, t := range types {
		j.ChangeTypes = append(j.ChangeTypes, models.ChangeType(t))
	}
	if len(summary) > 0 {
		var s models.ResultsSummary
		if err := json.Unmarshal(summary, &s); err != nil {
			return models.Job{}, fmt.Errorf("decode results summary: %w", err)
		}
		j.ResultsSummary = &s
	}
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return j, nil
}

func changeTypeStrings(types []models.ChangeType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	return out
}

var (
	_ Store    = (*PostgresStore)(nil)
	_ Listener = (*PostgresStore)(nil)
)
