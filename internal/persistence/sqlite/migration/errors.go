package migration

import (
	"errors"
	"fmt"
)

// Sentinel errors for catalog validation, migration file parsing and step
// execution. The structured types below wrap them.
var (
	// ErrCatalogInvalid indicates that the catalog violates its ordering invariants
	ErrCatalogInvalid = errors.New("migration catalog is invalid")

	// ErrStepFailed indicates that a migration step failed to execute
	ErrStepFailed = errors.New("migration step failed")

	// ErrDuplicateVersion indicates that multiple steps have the same version
	ErrDuplicateVersion = errors.New("duplicate migration version")

	// ErrVersionOrder indicates that a step version is lower than its predecessor
	ErrVersionOrder = errors.New("migration versions out of order")

	// ErrInvalidVersion indicates that a step version is not a positive integer
	ErrInvalidVersion = errors.New("invalid migration version")

	// ErrEmptyStep indicates that a step has no statements to execute
	ErrEmptyStep = errors.New("migration step has no statements")

	// ErrBackwardStep indicates a down migration in a forward-only catalog
	ErrBackwardStep = errors.New("backward migration steps are not supported")

	// ErrInvalidMigrationFile indicates that a migration file is malformed or invalid
	ErrInvalidMigrationFile = errors.New("invalid migration file format")
)

// CatalogError reports a catalog invariant violation. It is a programming
// defect and is raised before any statement executes.
type CatalogError struct {
	Index   int   // Position of the offending step in the catalog
	Version int64 // Version of the offending step
	Err     error // Underlying sentinel
}

// Error implements the error interface
func (e *CatalogError) Error() string {
	return fmt.Sprintf("migration catalog: step %d (version %d): %v", e.Index, e.Version, e.Err)
}

// Unwrap returns the underlying error for error unwrapping
func (e *CatalogError) Unwrap() error {
	return e.Err
}

// Is matches ErrCatalogInvalid in addition to the wrapped sentinel.
func (e *CatalogError) Is(target error) bool {
	return target == ErrCatalogInvalid
}

// StepFailure reports a step whose statements or bookkeeping insert failed.
// The database remains at the last successfully committed version.
type StepFailure struct {
	Version     int64
	Description string
	Err         error
}

// Error implements the error interface
func (e *StepFailure) Error() string {
	return fmt.Sprintf("migration %d (%s) failed: %v", e.Version, e.Description, e.Err)
}

// Unwrap returns the underlying error for error unwrapping
func (e *StepFailure) Unwrap() error {
	return e.Err
}

// Is matches ErrStepFailed.
func (e *StepFailure) Is(target error) bool {
	return target == ErrStepFailed
}

// DatabaseError wraps database-related errors during migration operations
type DatabaseError struct {
	Version   int64  // Migration version (if applicable)
	Query     string // SQL query that failed (if applicable)
	Operation string // Database operation (execute, query, etc.)
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *DatabaseError) Error() string {
	if e.Version != 0 {
		return fmt.Sprintf("database error in migration %d during %s: %v", e.Version, e.Operation, e.Err)
	}
	return fmt.Sprintf("database error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// NewDatabaseError creates a new DatabaseError
func NewDatabaseError(version int64, query, operation string, err error) *DatabaseError {
	return &DatabaseError{
		Version:   version,
		Query:     query,
		Operation: operation,
		Err:       err,
	}
}

// FileError reports a malformed migration file while loading a catalog.
type FileError struct {
	Path string
	Err  error
}

// Error implements the error interface
func (e *FileError) Error() string {
	return fmt.Sprintf("migration file %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *FileError) Unwrap() error {
	return e.Err
}

// ErrorKind maps migration errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrCatalogInvalid):
		return "catalog_invalid"
	case errors.Is(err, ErrStepFailed):
		return "step_failed"
	case errors.Is(err, ErrInvalidMigrationFile):
		return "invalid_file"
	}

	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return "database"
	}
	return "internal"
}
