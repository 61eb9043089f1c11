package migration

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Catalog is the complete, ordered list of migration steps shipped in a
// build. The zero value is an empty catalog.
type Catalog struct {
	steps []Step
}

// NewCatalog returns an immutable catalog holding copies of steps in the
// given order. Checksums are computed here; ordering is checked by Validate
// so that a malformed catalog surfaces as an error from Runner.Apply.
func NewCatalog(steps ...Step) Catalog {
	copied := make([]Step, len(steps))
	for i, step := range steps {
		step.Statements = append([]string(nil), step.Statements...)
		step.Checksum = Checksum(step.Statements)
		copied[i] = step
	}
	return Catalog{steps: copied}
}

// Steps returns a copy of the catalog's steps.
func (c Catalog) Steps() []Step {
	return cloneSteps(c.steps)
}

// Len returns the number of steps.
func (c Catalog) Len() int {
	return len(c.steps)
}

// Latest returns the highest version, or 0 for an empty catalog. It assumes
// a valid catalog.
func (c Catalog) Latest() int64 {
	if len(c.steps) == 0 {
		return 0
	}
	return c.steps[len(c.steps)-1].Version
}

// Lookup returns the step with the given version.
func (c Catalog) Lookup(version int64) (Step, bool) {
	for _, step := range c.steps {
		if step.Version == version {
			return cloneStep(step), true
		}
	}
	return Step{}, false
}

// After returns the steps with a version strictly greater than version, in
// catalog order.
func (c Catalog) After(version int64) []Step {
	var pending []Step
	for _, step := range c.steps {
		if step.Version > version {
			pending = append(pending, cloneStep(step))
		}
	}
	return pending
}

// Append returns a new catalog with steps added after the existing ones.
func (c Catalog) Append(steps ...Step) Catalog {
	return NewCatalog(append(c.Steps(), steps...)...)
}

// Validate checks the catalog invariants: positive versions, strictly
// ascending order without duplicates, forward direction and at least one
// non-blank statement per step.
func (c Catalog) Validate() error {
	seen := make(map[int64]int, len(c.steps))
	var previous int64

	for i, step := range c.steps {
		if step.Version <= 0 {
			return &CatalogError{Index: i, Version: step.Version, Err: ErrInvalidVersion}
		}
		if _, dup := seen[step.Version]; dup {
			return &CatalogError{Index: i, Version: step.Version, Err: ErrDuplicateVersion}
		}
		if i > 0 && step.Version < previous {
			return &CatalogError{Index: i, Version: step.Version, Err: ErrVersionOrder}
		}
		if step.Direction != Forward {
			return &CatalogError{Index: i, Version: step.Version, Err: ErrBackwardStep}
		}
		if !hasStatements(step.Statements) {
			return &CatalogError{Index: i, Version: step.Version, Err: ErrEmptyStep}
		}
		seen[step.Version] = i
		previous = step.Version
	}
	return nil
}

// Checksum returns the hex BLAKE2b-256 digest of the trimmed statements.
func Checksum(statements []string) string {
	normalized := make([]string, 0, len(statements))
	for _, stmt := range statements {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			normalized = append(normalized, stmt)
		}
	}
	sum := blake2b.Sum256([]byte(strings.Join(normalized, ";\n")))
	return hex.EncodeToString(sum[:])
}

func hasStatements(statements []string) bool {
	for _, stmt := range statements {
		if strings.TrimSpace(stmt) != "" {
			return true
		}
	}
	return false
}

func cloneStep(step Step) Step {
	step.Statements = append([]string(nil), step.Statements...)
	return step
}

func cloneSteps(steps []Step) []Step {
	out := make([]Step, len(steps))
	for i, step := range steps {
		out[i] = cloneStep(step)
	}
	return out
}
