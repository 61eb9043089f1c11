package sqlite

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/example/readinglist/internal/catalog"
	"github.com/example/readinglist/internal/persistence/sqlite/migration"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestDatabase opens a Database rooted in a fresh temporary directory.
func newTestDatabase(t *testing.T, cat migration.Catalog) *Database {
	t.Helper()

	db, err := Open(context.Background(), Config{
		Root:    StaticRoot(t.TempDir()),
		Catalog: cat,
		Logger:  discardLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// newMigratedDatabase returns a Database with the shipped catalog applied.
func newMigratedDatabase(t *testing.T) *Database {
	t.Helper()

	db := newTestDatabase(t, catalog.Default())
	_, err := db.ApplyMigrationsAtStartup(context.Background())
	require.NoError(t, err)
	return db
}

func maxVersion(t *testing.T, db *Database) int64 {
	t.Helper()

	var version int64
	err := db.View(context.Background(), func(ctx context.Context, conn *sqlx.DB) error {
		return conn.GetContext(ctx, &version, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
	})
	require.NoError(t, err)
	return version
}

func tableNames(t *testing.T, conn *sqlx.DB) []string {
	t.Helper()

	var names []string
	err := conn.Select(&names, `SELECT name FROM sqlite_schema WHERE type = 'table' AND name LIKE 'WBR_%' ORDER BY name`)
	require.NoError(t, err)
	return names
}

type recordingObserver struct {
	mu       sync.Mutex
	applied  []int64
	failed   []int64
	runs     int
	resets   int
	resetErr error
}

func (o *recordingObserver) StepApplied(version int64, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.applied = append(o.applied, version)
}

func (o *recordingObserver) StepFailed(version int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, version)
}

func (o *recordingObserver) ApplyFinished(int, time.Duration, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs++
}

func (o *recordingObserver) ResetFinished(_ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resets++
	o.resetErr = err
}
