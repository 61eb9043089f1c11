package migration

import (
	"context"
	"time"
)

// Direction of a migration step.
type Direction int

const (
	// Forward steps move the schema to a newer version.
	Forward Direction = iota
	// Backward steps undo a forward step. They are never applied automatically.
	Backward
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return "unknown"
	}
}

// Step is a single versioned schema change.
type Step struct {
	Version     int64     // Strictly increasing across the catalog
	Description string    // Human-readable label, diagnostics only
	Direction   Direction // Only Forward steps are applied
	Statements  []string  // Statements executed atomically as one unit
	Checksum    string    // Filled in by NewCatalog
}

// AppliedMigration is a row of the schema_migrations bookkeeping table.
type AppliedMigration struct {
	Version         int64  `db:"version"`
	Description     string `db:"description"`
	Checksum        string `db:"checksum"`
	AppliedAtRaw    string `db:"applied_at"`
	ExecutionTimeMs int64  `db:"execution_time_ms"`
	RunID           string `db:"run_id"`

	AppliedAt     time.Time     `db:"-"`
	ExecutionTime time.Duration `db:"-"`
}

// Executor performs the database side of the migration process.
type Executor interface {
	// InitializeVersionTable creates the schema_migrations table if it doesn't exist
	InitializeVersionTable(ctx context.Context) error

	// CurrentVersion returns the highest applied version, or 0 when none
	CurrentVersion(ctx context.Context) (int64, error)

	// ApplyStep executes the step and records it inside one transaction
	ApplyStep(ctx context.Context, step Step, runID string) (AppliedMigration, error)

	// AppliedMigrations returns all applied rows ordered by version
	AppliedMigrations(ctx context.Context) ([]AppliedMigration, error)
}

// Observer receives notifications about migration progress. Implementations
// must be safe for concurrent use.
type Observer interface {
	StepApplied(version int64, elapsed time.Duration)
	StepFailed(version int64)
	ApplyFinished(applied int, elapsed time.Duration, err error)
}

// Status provides information about the current migration state.
type Status struct {
	CurrentVersion int64              // Highest applied version, 0 for an empty database
	LatestVersion  int64              // Highest version in the catalog
	Applied        []AppliedMigration // Rows of the bookkeeping table
	Pending        []Step             // Steps that Apply would run
	Drifted        []int64            // Applied versions whose checksum no longer matches
	Skipped        []int64            // Catalog versions below CurrentVersion with no bookkeeping row
	Ahead          bool               // Database was migrated by a newer build
}

// UpToDate reports whether no steps are pending. Skipped steps are not
// pending: Apply only runs steps above CurrentVersion.
func (s Status) UpToDate() bool {
	return len(s.Pending) == 0
}
