package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/sentineleye/internal/store"
	"github.com/kiranshivaraju/sentineleye/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns its connection string.
func setupTestDB(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("sentineleye_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))
	return connStr
}

func newPostgresStore(t *testing.T, connStr string, opts store.Options) *store.PostgresStore {
	t.Helper()
	pool, err := pgxpool.New(context.Background(), connStr)
	require.NoError(t, err)
	s := store.NewPostgresStore(pool, opts)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	connStr := setupTestDB(t)

	runStoreContract(t, func(t *testing.T, opts store.Options) store.Store {
		s := newPostgresStore(t, connStr, opts)
		require.NoError(t, s.Clear(context.Background()))
		return s
	})
}

func TestPostgresStore_MigrationsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	connStr := setupTestDB(t)
	assert.NoError(t, store.RunMigrations(connStr, migrationsDir()))
}

func TestPostgresStore_ListenRelaysOtherWriters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	connStr := setupTestDB(t)
	writer := newPostgresStore(t, connStr, store.Options{})
	reader := newPostgresStore(t, connStr, store.Options{})

	received := make(chan models.ChangeEvent, 8)
	unsubscribe := reader.Subscribe(func(ev models.ChangeEvent) { received <- ev })
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, reader.Listen(ctx))
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	require.Eventually(t, func() bool {
		if _, err := writer.Upsert(context.Background(), models.JobPatch{ID: "job-1"}); err != nil {
			return false
		}
		select {
		case ev := <-received:
			return ev.Kind == models.ChangeUpsert && ev.JobID == "job-1"
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	// own writes are delivered exactly once
	_, err := reader.Upsert(context.Background(), models.JobPatch{ID: "job-2"})
	require.NoError(t, err)

	own := 0
	timeout := time.After(500 * time.Millisecond)
	for done := false; !done; {
		select {
		case ev := <-received:
			if ev.JobID == "job-2" {
				own++
			}
		case <-timeout:
			done = true
		}
	}
	assert.Equal(t, 1, own)
}

func TestPostgresStore_SummaryCheckConstraint(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	connStr := setupTestDB(t)
	s := newPostgresStore(t, connStr, store.Options{})
	ctx := context.Background()

	// Merge drops the summary for non-completed jobs, so the constraint never trips.
	j, err := s.Upsert(ctx, models.JobPatch{
		ID:             "job-1",
		Status:         models.Ptr(models.JobStatusProcessing),
		ResultsSummary: &models.ResultsSummary{DeforestationKm2: 1},
	})
	require.NoError(t, err)
	assert.Nil(t, j.ResultsSummary)
}
