package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/readinglist/internal/logging"
)

// Runner applies a catalog to a database through an Executor.
type Runner struct {
	executor Executor
	catalog  Catalog
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
	newRunID func() string
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the base logger. A logger carried by the context passed to
// Apply takes precedence.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithObserver registers an observer for progress notifications.
func WithObserver(observer Observer) RunnerOption {
	return func(r *Runner) {
		r.observer = observer
	}
}

// WithClock overrides the clock used to measure run durations.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRunIDGenerator overrides the run identifier source.
func WithRunIDGenerator(next func() string) RunnerOption {
	return func(r *Runner) {
		if next != nil {
			r.newRunID = next
		}
	}
}

// NewRunner creates a runner for the given catalog.
func NewRunner(executor Executor, catalog Catalog, opts ...RunnerOption) *Runner {
	r := &Runner{
		executor: executor,
		catalog:  catalog,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Catalog returns the catalog the runner applies.
func (r *Runner) Catalog() Catalog {
	return r.catalog
}

// Apply runs every catalog step newer than the highest applied version, in
// ascending order, and returns how many steps were applied. It stops at the
// first failing step and returns a *StepFailure; steps committed before it
// remain applied. A malformed catalog yields a *CatalogError before any
// statement executes.
func (r *Runner) Apply(ctx context.Context) (int, error) {
	started := r.now()
	runID := r.newRunID()
	logger := logging.Component(ctx, r.logger, "migration").With("run_id", runID)

	applied, err := r.apply(ctx, logger, runID)

	elapsed := r.now().Sub(started)
	if r.observer != nil {
		r.observer.ApplyFinished(applied, elapsed, err)
	}
	if err != nil {
		logger.Error("migration run failed",
			"applied", applied,
			"error", err,
			"error_kind", ErrorKind(err),
		)
		return applied, err
	}

	if applied == 0 {
		logger.Info("database schema is up to date", "version", r.catalog.Latest())
	} else {
		logger.Info("migration run completed",
			"applied", applied,
			"version", r.catalog.Latest(),
			"elapsed", elapsed,
		)
	}
	return applied, nil
}

func (r *Runner) apply(ctx context.Context, logger *slog.Logger, runID string) (int, error) {
	if err := r.catalog.Validate(); err != nil {
		return 0, err
	}

	if err := r.executor.InitializeVersionTable(ctx); err != nil {
		return 0, fmt.Errorf("initialize version table: %w", err)
	}

	current, err := r.executor.CurrentVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read current version: %w", err)
	}

	if err := r.checkApplied(ctx, logger, current); err != nil {
		return 0, err
	}

	pending := r.catalog.After(current)
	if len(pending) == 0 {
		return 0, nil
	}

	logger.Info("applying pending migrations",
		"current_version", current,
		"target_version", pending[len(pending)-1].Version,
		"pending", len(pending),
	)

	applied := 0
	for i, step := range pending {
		stepLogger := logger.With("version", step.Version, "description", step.Description)
		stepLogger.Debug("executing migration", "position", i+1, "of", len(pending))

		record, err := r.executor.ApplyStep(ctx, step, runID)
		if err != nil {
			if r.observer != nil {
				r.observer.StepFailed(step.Version)
			}
			return applied, &StepFailure{
				Version:     step.Version,
				Description: step.Description,
				Err:         err,
			}
		}

		applied++
		if r.observer != nil {
			r.observer.StepApplied(step.Version, record.ExecutionTime)
		}
		stepLogger.Info("migration applied", "execution_time", record.ExecutionTime)
	}

	return applied, nil
}

// checkApplied logs drift between the bookkeeping table and the catalog.
// None of the conditions block the run: already-applied steps are never
// re-run and skipped steps are never back-filled.
func (r *Runner) checkApplied(ctx context.Context, logger *slog.Logger, current int64) error {
	if current > r.catalog.Latest() {
		logger.Warn("database schema is newer than this build",
			"current_version", current,
			"latest_known_version", r.catalog.Latest(),
		)
	}
	if current == 0 {
		return nil
	}

	rows, err := r.executor.AppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}
	for _, version := range r.drifted(rows) {
		logger.Warn("applied migration differs from the shipped catalog", "version", version)
	}
	for _, version := range r.skipped(rows, current) {
		logger.Warn("catalog step below the applied version was never applied",
			"version", version,
			"current_version", current,
		)
	}
	return nil
}

// skipped returns catalog versions below current that have no bookkeeping
// row, i.e. the applied versions are not a prefix of the catalog.
func (r *Runner) skipped(rows []AppliedMigration, current int64) []int64 {
	seen := make(map[int64]bool, len(rows))
	for _, row := range rows {
		seen[row.Version] = true
	}

	var skipped []int64
	for _, step := range r.catalog.Steps() {
		if step.Version >= current {
			break
		}
		if !seen[step.Version] {
			skipped = append(skipped, step.Version)
		}
	}
	return skipped
}

func (r *Runner) drifted(rows []AppliedMigration) []int64 {
	var drifted []int64
	for _, row := range rows {
		step, ok := r.catalog.Lookup(row.Version)
		if !ok || row.Checksum == "" {
			continue
		}
		if step.Checksum != row.Checksum {
			drifted = append(drifted, row.Version)
		}
	}
	return drifted
}

// Pending returns the steps Apply would run.
func (r *Runner) Pending(ctx context.Context) ([]Step, error) {
	if err := r.catalog.Validate(); err != nil {
		return nil, err
	}
	if err := r.executor.InitializeVersionTable(ctx); err != nil {
		return nil, fmt.Errorf("initialize version table: %w", err)
	}
	current, err := r.executor.CurrentVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("read current version: %w", err)
	}
	return r.catalog.After(current), nil
}

// Status reports the applied and pending state of the database.
func (r *Runner) Status(ctx context.Context) (Status, error) {
	pending, err := r.Pending(ctx)
	if err != nil {
		return Status{}, err
	}

	rows, err := r.executor.AppliedMigrations(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("read applied migrations: %w", err)
	}

	status := Status{
		LatestVersion: r.catalog.Latest(),
		Applied:       rows,
		Pending:       pending,
		Drifted:       r.drifted(rows),
	}
	if len(rows) > 0 {
		status.CurrentVersion = rows[len(rows)-1].Version
	}
	status.Skipped = r.skipped(rows, status.CurrentVersion)
	status.Ahead = status.CurrentVersion > status.LatestVersion
	return status, nil
}
