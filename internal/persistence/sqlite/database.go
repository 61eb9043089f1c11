package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/multierr"

	"github.com/example/readinglist/internal/logging"
	"github.com/example/readinglist/internal/persistence/sqlite/migration"
)

// ErrNotMigrated is returned by View before a migration run has succeeded.
var ErrNotMigrated = errors.New("database schema has not been migrated")

// Observer receives migration progress and reset outcomes.
type Observer interface {
	migration.Observer
	ResetFinished(elapsed time.Duration, err error)
}

// Config wires a Database.
type Config struct {
	// Root supplies the host configuration directory.
	Root RootProvider

	// Catalog is the migration catalog applied at startup and after reset.
	Catalog migration.Catalog

	// Connection settings; the zero value means DefaultConnectionConfig.
	Connection ConnectionConfig

	Logger   *slog.Logger
	Observer Observer

	// Clock and RunID replace time.Now and uuid run identifiers.
	Clock func() time.Time
	RunID func() string
}

// Database owns the application's SQLite file. Reads through View are
// refused until ApplyMigrationsAtStartup has succeeded; apply and reset hold
// the write lock so they never overlap each other or in-flight reads.
type Database struct {
	mu         sync.RWMutex
	location   Location
	catalog    migration.Catalog
	connection ConnectionConfig
	logger     *slog.Logger
	observer   Observer
	clock      func() time.Time
	runID      func() string

	db    *sqlx.DB
	ready bool
}

// Open resolves the database location. No file is touched until
// ApplyMigrationsAtStartup.
func Open(ctx context.Context, cfg Config) (*Database, error) {
	loc, err := Resolve(cfg.Root)
	if err != nil {
		logging.Component(ctx, cfg.Logger, "database").Error("database location unavailable", "error", err)
		return nil, err
	}

	connection := cfg.Connection
	if connection == (ConnectionConfig{}) {
		connection = DefaultConnectionConfig()
	}
	if err := connection.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite configuration: %w", err)
	}

	return &Database{
		location:   loc,
		catalog:    cfg.Catalog,
		connection: connection,
		logger:     cfg.Logger,
		observer:   cfg.Observer,
		clock:      cfg.Clock,
		runID:      cfg.RunID,
	}, nil
}

// Location returns the resolved file layout.
func (d *Database) Location() Location {
	return d.location
}

func (d *Database) now() time.Time {
	if d.clock != nil {
		return d.clock()
	}
	return time.Now()
}

// DatabaseRootPath returns the directory holding the database files.
func (d *Database) DatabaseRootPath() string {
	return d.location.Root
}

func (d *Database) runnerOptions() []migration.RunnerOption {
	opts := []migration.RunnerOption{
		migration.WithLogger(d.logger),
		migration.WithClock(d.clock),
		migration.WithRunIDGenerator(d.runID),
	}
	if d.observer != nil {
		opts = append(opts, migration.WithObserver(d.observer))
	}
	return opts
}

func (d *Database) executor() *migration.SQLiteExecutor {
	return migration.NewSQLiteExecutor(d.db, migration.WithExecutorClock(d.clock))
}

// ApplyMigrationsAtStartup opens the database, creating the primary file
// when missing, and applies every pending catalog step. The root directory
// must already exist.
func (d *Database) ApplyMigrationsAtStartup(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		db, err := OpenDatabase(ctx, d.location.Primary, d.connection, d.logger)
		if err != nil {
			return 0, err
		}
		d.db = db
	}

	runner := migration.NewRunner(d.executor(), d.catalog, d.runnerOptions()...)
	applied, err := runner.Apply(ctx)
	if err != nil {
		d.ready = false
		return applied, err
	}
	d.ready = true
	return applied, nil
}

// ResetDatabase wipes and recreates the database. The live handle is closed
// first; on success a handle to the fresh database replaces it.
func (d *Database) ResetDatabase(ctx context.Context) (ResetResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	started := d.now()
	d.ready = false

	var closeErr error
	if d.db != nil {
		closeErr = d.db.Close()
		d.db = nil
	}

	db, result, err := reset(ctx, d.location, d.catalog,
		WithResetConnection(d.connection),
		WithResetLogger(d.logger),
		WithResetRunnerOptions(d.runnerOptions()...),
		WithResetExecutorOptions(migration.WithExecutorClock(d.clock)),
	)
	if closeErr != nil {
		result.Warnings = multierr.Append(result.Warnings, fmt.Errorf("close database: %w", closeErr))
	}
	d.db = db
	if err == nil {
		d.ready = true
	}

	if d.observer != nil {
		d.observer.ResetFinished(d.now().Sub(started), err)
	}
	return result, err
}

// View runs fn with the live handle under the read lock.
func (d *Database) View(ctx context.Context, fn func(ctx context.Context, db *sqlx.DB) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.ready || d.db == nil {
		return ErrNotMigrated
	}
	return fn(ctx, d.db)
}

// Status reports the migration state of the open database.
func (d *Database) Status(ctx context.Context) (migration.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		db, err := OpenDatabase(ctx, d.location.Primary, d.connection, d.logger)
		if err != nil {
			return migration.Status{}, err
		}
		d.db = db
	}
	runner := migration.NewRunner(d.executor(), d.catalog, d.runnerOptions()...)
	return runner.Status(ctx)
}

// Close releases the connection pool.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ready = false
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}
