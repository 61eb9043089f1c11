package sqlite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DatabaseFileName is the primary database file inside the root directory.
const DatabaseFileName = "application.db"

// ErrLocationUnavailable is matched by every *LocationError.
var ErrLocationUnavailable = errors.New("database location unavailable")

// LocationError reports that the host could not supply a usable root
// directory. It is fatal to startup.
type LocationError struct {
	Root string
	Err  error
}

// Error implements the error interface
func (e *LocationError) Error() string {
	if e.Root == "" {
		return fmt.Sprintf("resolve database location: %v", e.Err)
	}
	return fmt.Sprintf("resolve database location %q: %v", e.Root, e.Err)
}

// Unwrap returns the underlying error
func (e *LocationError) Unwrap() error {
	return e.Err
}

// Is matches ErrLocationUnavailable.
func (e *LocationError) Is(target error) bool {
	return target == ErrLocationUnavailable
}

// Location holds the on-disk paths of the database and its journal
// companions.
type Location struct {
	Root    string
	Primary string
	WAL     string
	SHM     string
}

// Files lists the primary, WAL and SHM paths.
func (l Location) Files() []string {
	return []string{l.Primary, l.WAL, l.SHM}
}

// RootProvider supplies the host configuration directory.
type RootProvider func() (string, error)

// StaticRoot returns a provider for a fixed directory.
func StaticRoot(dir string) RootProvider {
	return func() (string, error) {
		return dir, nil
	}
}

// UserConfigRoot returns a provider for <user config dir>/<appID>.
func UserConfigRoot(appID string) RootProvider {
	return func() (string, error) {
		if strings.TrimSpace(appID) == "" {
			return "", fmt.Errorf("application identifier is empty")
		}
		base, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(base, appID), nil
	}
}

// Resolve derives the database paths from the host root. It never creates
// directories and computes the paths anew on every call.
func Resolve(root RootProvider) (Location, error) {
	if root == nil {
		return Location{}, &LocationError{Err: errors.New("no root provider configured")}
	}

	dir, err := root()
	if err != nil {
		return Location{}, &LocationError{Err: err}
	}
	if strings.TrimSpace(dir) == "" {
		return Location{}, &LocationError{Err: errors.New("root directory is empty")}
	}
	if !filepath.IsAbs(dir) {
		return Location{}, &LocationError{Root: dir, Err: errors.New("root directory must be absolute")}
	}

	dir = filepath.Clean(dir)
	primary := filepath.Join(dir, DatabaseFileName)
	return Location{
		Root:    dir,
		Primary: primary,
		WAL:     primary + "-wal",
		SHM:     primary + "-shm",
	}, nil
}
