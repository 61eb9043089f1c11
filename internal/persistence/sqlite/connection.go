package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	sqldblogger "github.com/simukti/sqldb-logger"
	"modernc.org/sqlite"

	"github.com/example/readinglist/internal/logging"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// ConnectionConfig holds SQLite-specific connection settings.
type ConnectionConfig struct {
	// BusyTimeout sets how long to wait for database locks
	BusyTimeout time.Duration

	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, etc.)
	JournalMode string

	// Synchronous sets the synchronous mode (FULL, NORMAL, OFF)
	Synchronous string

	// EnableForeignKeys enables foreign key constraint checking
	EnableForeignKeys bool

	// MaxOpenConns sets the maximum number of open connections
	MaxOpenConns int

	// LogSQL wraps the driver with sqldb-logger, logging every statement
	LogSQL bool
}

// DefaultConnectionConfig returns the settings used by the application.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		BusyTimeout:       5 * time.Second,
		JournalMode:       "WAL",
		Synchronous:       "NORMAL",
		EnableForeignKeys: true,
		MaxOpenConns:      1,
	}
}

// Validate validates the connection configuration.
func (c ConnectionConfig) Validate() error {
	if c.BusyTimeout < 0 {
		return fmt.Errorf("busy timeout cannot be negative")
	}

	validJournalModes := map[string]bool{
		"DELETE":   true,
		"TRUNCATE": true,
		"PERSIST":  true,
		"MEMORY":   true,
		"WAL":      true,
		"OFF":      true,
	}
	if c.JournalMode != "" && !validJournalModes[strings.ToUpper(c.JournalMode)] {
		return fmt.Errorf("invalid journal mode: %s", c.JournalMode)
	}

	validSyncModes := map[string]bool{
		"OFF":    true,
		"NORMAL": true,
		"FULL":   true,
		"EXTRA":  true,
	}
	if c.Synchronous != "" && !validSyncModes[strings.ToUpper(c.Synchronous)] {
		return fmt.Errorf("invalid synchronous mode: %s", c.Synchronous)
	}

	if c.MaxOpenConns < 0 {
		return fmt.Errorf("max open connections cannot be negative")
	}
	return nil
}

// dsn builds a modernc.org/sqlite DSN as a file: URI. PRAGMAs are passed as
// _pragma parameters so that every pooled connection receives them. The path
// is percent-encoded so that '?', '#' and '%' in directory names survive.
func (c ConnectionConfig) dsn(path string) string {
	query := url.Values{}
	query.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
	if c.JournalMode != "" {
		query.Add("_pragma", fmt.Sprintf("journal_mode(%s)", strings.ToUpper(c.JournalMode)))
	}
	if c.Synchronous != "" {
		query.Add("_pragma", fmt.Sprintf("synchronous(%s)", strings.ToUpper(c.Synchronous)))
	}
	if c.EnableForeignKeys {
		query.Add("_pragma", "foreign_keys(1)")
	}

	slashed := filepath.ToSlash(path)
	if filepath.VolumeName(path) != "" {
		slashed = "/" + slashed
	}
	return "file:" + (&url.URL{Path: slashed}).EscapedPath() + "?" + query.Encode()
}

// OpenDatabase opens the database file at path, creating it when missing.
// The parent directory must already exist.
func OpenDatabase(ctx context.Context, path string, cfg ConnectionConfig, logger *slog.Logger) (*sqlx.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite configuration: %w", err)
	}

	if err := createDatabaseFile(path); err != nil {
		return nil, err
	}

	dsn := cfg.dsn(path)
	var db *sqlx.DB
	if cfg.LogSQL {
		raw := sqldblogger.OpenDriver(dsn, &sqlite.Driver{}, logging.NewSQLLogger(logger),
			sqldblogger.WithMinimumLevel(sqldblogger.LevelDebug),
			sqldblogger.WithSQLQueryAsMessage(true),
		)
		db = sqlx.NewDb(raw, DriverName)
	} else {
		var err error
		db, err = sqlx.Open(DriverName, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database: %w", err)
		}
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	return db, nil
}

// createDatabaseFile creates an empty database file if it doesn't exist.
func createDatabaseFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to stat database file %s: %w", path, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create database file %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close database file %s: %w", path, err)
	}
	return nil
}
