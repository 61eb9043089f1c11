// Package migration provides the versioned schema migration engine for the
// embedded SQLite database.
//
// A Catalog is an immutable, strictly ordered list of forward-only Steps. The
// Runner compares the catalog against the schema_migrations bookkeeping table
// and applies every step whose version is greater than the highest applied
// version:
//
//   - Each step runs in its own transaction together with its bookkeeping row
//   - The first failing step stops the run; committed steps stay applied
//   - Malformed catalogs (duplicate, decreasing or non-positive versions) are
//     rejected before any statement executes
//   - Applied steps whose statements changed since they ran are reported as
//     drift and never re-applied
//
// Catalogs are usually declared as embedded SQL files named
// {version}_{description}.sql (e.g. "0001_create_initial_tables.sql") and
// loaded with LoadFS.
//
// Example usage:
//
//	runner := migration.NewRunner(migration.NewSQLiteExecutor(db), catalog.Default())
//	applied, err := runner.Apply(ctx)
//	if err != nil {
//		return fmt.Errorf("apply migrations: %w", err)
//	}
//
// The runner does not lock the database file. Callers must guarantee that at
// most one Apply runs against a given file at a time.
package migration
