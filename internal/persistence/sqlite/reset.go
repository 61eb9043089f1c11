package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/multierr"

	"github.com/example/readinglist/internal/logging"
	"github.com/example/readinglist/internal/persistence/sqlite/migration"
)

// ErrResetFailed is matched by every *ResetError.
var ErrResetFailed = errors.New("database reset failed")

// ResetStage names the step of the reset protocol that failed.
type ResetStage string

const (
	StageRecreateDirectory ResetStage = "recreate directory"
	StageCreateDatabase    ResetStage = "create database"
	StageMigrate           ResetStage = "migrate"
)

// ResetError reports a failed reset. The filesystem is left in whatever
// state the failure produced; the previous data must be considered lost.
type ResetError struct {
	Stage ResetStage
	Err   error
}

// Error implements the error interface
func (e *ResetError) Error() string {
	return fmt.Sprintf("reset database: %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error
func (e *ResetError) Unwrap() error {
	return e.Err
}

// Is matches ErrResetFailed.
func (e *ResetError) Is(target error) bool {
	return target == ErrResetFailed
}

// ResetResult describes a completed reset.
type ResetResult struct {
	Applied  int   // Catalog steps applied to the fresh database
	Warnings error // Non-fatal removal failures, combined with multierr
}

type resetSettings struct {
	connection    ConnectionConfig
	logger        *slog.Logger
	runnerOptions []migration.RunnerOption
	execOptions   []migration.ExecutorOption
	removeAll     func(string) error
	remove        func(string) error
}

// ResetOption customises Reset.
type ResetOption func(*resetSettings)

// WithResetConnection sets the connection settings used for the fresh database.
func WithResetConnection(cfg ConnectionConfig) ResetOption {
	return func(s *resetSettings) {
		s.connection = cfg
	}
}

// WithResetLogger sets the base logger.
func WithResetLogger(logger *slog.Logger) ResetOption {
	return func(s *resetSettings) {
		s.logger = logger
	}
}

// WithResetRunnerOptions passes options to the migration runner.
func WithResetRunnerOptions(opts ...migration.RunnerOption) ResetOption {
	return func(s *resetSettings) {
		s.runnerOptions = append(s.runnerOptions, opts...)
	}
}

// WithResetExecutorOptions passes options to the migration executor.
func WithResetExecutorOptions(opts ...migration.ExecutorOption) ResetOption {
	return func(s *resetSettings) {
		s.execOptions = append(s.execOptions, opts...)
	}
}

// withRemovers replaces the filesystem removal functions.
func withRemovers(removeAll, remove func(string) error) ResetOption {
	return func(s *resetSettings) {
		s.removeAll = removeAll
		s.remove = remove
	}
}

// Reset destroys every database artifact under loc.Root, recreates an empty
// database and replays the full catalog. It is destructive and must only run
// on an explicit user request. Callers must close their own handles to the
// database first.
func Reset(ctx context.Context, loc Location, catalog migration.Catalog, opts ...ResetOption) (ResetResult, error) {
	db, result, err := reset(ctx, loc, catalog, opts...)
	if db != nil {
		if cerr := db.Close(); cerr != nil {
			result.Warnings = multierr.Append(result.Warnings, fmt.Errorf("close database: %w", cerr))
		}
	}
	return result, err
}

// reset performs the protocol and hands back the open handle to the fresh
// database, which may be non-nil even when migration failed.
func reset(ctx context.Context, loc Location, catalog migration.Catalog, opts ...ResetOption) (*sqlx.DB, ResetResult, error) {
	settings := resetSettings{
		connection: DefaultConnectionConfig(),
		removeAll:  os.RemoveAll,
		remove:     os.Remove,
	}
	for _, opt := range opts {
		opt(&settings)
	}

	logger := logging.Component(ctx, settings.logger, "reset").With("reset_id", uuid.NewString(), "root", loc.Root)
	logger.Warn("resetting database, all local data will be deleted")

	var result ResetResult

	if err := settings.removeAll(loc.Root); err != nil && !errors.Is(err, fs.ErrNotExist) {
		result.Warnings = multierr.Append(result.Warnings, fmt.Errorf("remove %s: %w", loc.Root, err))
		for _, file := range loc.Files() {
			if err := settings.remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
				result.Warnings = multierr.Append(result.Warnings, fmt.Errorf("remove %s: %w", file, err))
			}
		}
	}
	for _, warning := range multierr.Errors(result.Warnings) {
		logger.Warn("reset removal incomplete", "error", warning)
	}

	if err := os.MkdirAll(loc.Root, 0o755); err != nil {
		return nil, result, fail(logger, StageRecreateDirectory, err)
	}

	if err := createFreshDatabaseFile(loc.Primary); err != nil {
		return nil, result, fail(logger, StageCreateDatabase, err)
	}

	db, err := OpenDatabase(ctx, loc.Primary, settings.connection, settings.logger)
	if err != nil {
		return nil, result, fail(logger, StageCreateDatabase, err)
	}

	runnerOpts := append([]migration.RunnerOption{migration.WithLogger(settings.logger)}, settings.runnerOptions...)
	runner := migration.NewRunner(migration.NewSQLiteExecutor(db, settings.execOptions...), catalog, runnerOpts...)

	started := time.Now()
	applied, err := runner.Apply(ctx)
	result.Applied = applied
	if err != nil {
		return db, result, fail(logger, StageMigrate, err)
	}

	logger.Info("database reset completed", "applied", applied, "elapsed", time.Since(started))
	return db, result, nil
}

// createFreshDatabaseFile creates the primary file and refuses to reuse one
// that survived the removal pass.
func createFreshDatabaseFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return file.Close()
}

func fail(logger *slog.Logger, stage ResetStage, err error) error {
	resetErr := &ResetError{Stage: stage, Err: err}
	logger.Error("database reset failed, data may be partially deleted",
		"stage", string(stage),
		"error", err,
	)
	return resetErr
}
