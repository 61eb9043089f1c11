package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/example/readinglist/internal/catalog"
	"github.com/example/readinglist/internal/persistence/sqlite"
	"github.com/example/readinglist/internal/persistence/sqlite/migration"
)

// SQLiteHarness provides a migrated database rooted in a temporary
// directory for integration-style tests.
type SQLiteHarness struct {
	Root     string
	Database *sqlite.Database
	Books    *sqlite.BookRepository
}

// HarnessOption customises NewSQLiteHarness.
type HarnessOption func(*sqlite.Config)

// WithCatalog replaces the shipped catalog.
func WithCatalog(cat migration.Catalog) HarnessOption {
	return func(cfg *sqlite.Config) {
		cfg.Catalog = cat
	}
}

// WithObserver registers an observer on the database.
func WithObserver(observer sqlite.Observer) HarnessOption {
	return func(cfg *sqlite.Config) {
		cfg.Observer = observer
	}
}

// WithLogger replaces the discarding logger.
func WithLogger(logger *slog.Logger) HarnessOption {
	return func(cfg *sqlite.Config) {
		cfg.Logger = logger
	}
}

// WithClock makes migration timestamps and book insertion dates come from
// clock.
func WithClock(clock *Clock) HarnessOption {
	return func(cfg *sqlite.Config) {
		cfg.Clock = clock.Now
	}
}

// WithRunIDs replaces uuid run identifiers with seq.
func WithRunIDs(seq *Sequence) HarnessOption {
	return func(cfg *sqlite.Config) {
		cfg.RunID = seq.Next
	}
}

// NewSQLiteHarness opens a database in tb.TempDir and applies the catalog.
// The database is closed by a cleanup registered with tb.
func NewSQLiteHarness(tb testing.TB, opts ...HarnessOption) *SQLiteHarness {
	tb.Helper()

	root := tb.TempDir()
	cfg := sqlite.Config{
		Root:    sqlite.StaticRoot(root),
		Catalog: catalog.Default(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sqlite.Open(context.Background(), cfg)
	if err != nil {
		tb.Fatalf("failed to open database: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close() })

	if _, err := db.ApplyMigrationsAtStartup(context.Background()); err != nil {
		tb.Fatalf("failed to migrate database: %v", err)
	}

	return &SQLiteHarness{
		Root:     root,
		Database: db,
		Books:    sqlite.NewBookRepository(db),
	}
}
