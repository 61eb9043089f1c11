package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// VersionTable is the name of the bookkeeping table.
const VersionTable = "schema_migrations"

// SQLiteExecutor implements the Executor interface for SQLite databases
type SQLiteExecutor struct {
	db  *sqlx.DB
	now func() time.Time
}

// ExecutorOption customises a SQLiteExecutor.
type ExecutorOption func(*SQLiteExecutor)

// WithExecutorClock overrides the clock used for applied_at timestamps.
func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *SQLiteExecutor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewSQLiteExecutor creates a new SQLite migration executor
func NewSQLiteExecutor(db *sqlx.DB, opts ...ExecutorOption) *SQLiteExecutor {
	e := &SQLiteExecutor{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InitializeVersionTable creates the schema_migrations table if it doesn't exist
func (e *SQLiteExecutor) InitializeVersionTable(ctx context.Context) error {
	createTableSQL := `
		CREATE TABLE IF NOT EXISTS ` + VersionTable + ` (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			checksum TEXT NOT NULL DEFAULT '',
			applied_at TEXT NOT NULL,
			execution_time_ms INTEGER NOT NULL DEFAULT 0,
			run_id TEXT NOT NULL DEFAULT ''
		)
	`

	if _, err := e.db.ExecContext(ctx, createTableSQL); err != nil {
		return NewDatabaseError(0, createTableSQL, "create "+VersionTable+" table", err)
	}
	return nil
}

// CurrentVersion returns the highest applied version, or 0 when none
func (e *SQLiteExecutor) CurrentVersion(ctx context.Context) (int64, error) {
	querySQL := `SELECT COALESCE(MAX(version), 0) FROM ` + VersionTable

	var version int64
	if err := e.db.GetContext(ctx, &version, querySQL); err != nil {
		return 0, NewDatabaseError(0, querySQL, "read current version", err)
	}
	return version, nil
}

// ApplyStep runs every statement of the step and inserts its bookkeeping row
// within one transaction. On any error the transaction is rolled back and
// neither the schema change nor the row becomes visible.
func (e *SQLiteExecutor) ApplyStep(ctx context.Context, step Step, runID string) (applied AppliedMigration, err error) {
	started := e.now()

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return AppliedMigration{}, NewDatabaseError(step.Version, "", "begin transaction", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	for i, stmt := range step.Statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			return AppliedMigration{}, NewDatabaseError(step.Version, stmt, fmt.Sprintf("execute statement %d", i+1), execErr)
		}
	}

	finished := e.now()
	applied = AppliedMigration{
		Version:       step.Version,
		Description:   step.Description,
		Checksum:      step.Checksum,
		AppliedAt:     finished.UTC(),
		ExecutionTime: finished.Sub(started),
		RunID:         runID,
	}
	applied.AppliedAtRaw = applied.AppliedAt.Format(time.RFC3339Nano)
	applied.ExecutionTimeMs = applied.ExecutionTime.Milliseconds()

	insertSQL := `
		INSERT INTO ` + VersionTable + ` (version, description, checksum, applied_at, execution_time_ms, run_id)
		VALUES (:version, :description, :checksum, :applied_at, :execution_time_ms, :run_id)
	`
	if _, execErr := tx.NamedExecContext(ctx, insertSQL, applied); execErr != nil {
		return AppliedMigration{}, NewDatabaseError(step.Version, insertSQL, "record migration", execErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return AppliedMigration{}, NewDatabaseError(step.Version, "", "commit transaction", commitErr)
	}

	return applied, nil
}

// AppliedMigrations returns all applied rows ordered by version
func (e *SQLiteExecutor) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	querySQL := `
		SELECT version, description, checksum, applied_at, execution_time_ms, run_id
		FROM ` + VersionTable + `
		ORDER BY version ASC
	`

	var rows []AppliedMigration
	if err := e.db.SelectContext(ctx, &rows, querySQL); err != nil {
		return nil, NewDatabaseError(0, querySQL, "get applied versions", err)
	}

	for i := range rows {
		appliedAt, parseErr := time.Parse(time.RFC3339Nano, rows[i].AppliedAtRaw)
		if parseErr == nil {
			rows[i].AppliedAt = appliedAt
		}
		rows[i].ExecutionTime = time.Duration(rows[i].ExecutionTimeMs) * time.Millisecond
	}

	return rows, nil
}

var _ Executor = (*SQLiteExecutor)(nil)
