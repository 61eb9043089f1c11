package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/example/readinglist/internal/logging"
	"github.com/example/readinglist/internal/persistence/sqlite"
)

// DefaultAppID names the directory under the user configuration directory
// that holds the database when no explicit root is configured.
const DefaultAppID = "com.example.readinglist"

// Config captures file and environment driven configuration values.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DatabaseConfig locates and tunes the SQLite database.
type DatabaseConfig struct {
	// Root overrides the host configuration directory. Empty means
	// <user config dir>/<AppID>.
	Root  string `yaml:"root"`
	AppID string `yaml:"app_id"`

	BusyTimeoutRaw string        `yaml:"busy_timeout"`
	BusyTimeout    time.Duration `yaml:"-"`

	JournalMode string `yaml:"journal_mode"`
	Synchronous string `yaml:"synchronous"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	SQL    bool   `yaml:"sql"`
}

// MetricsConfig enables the Prometheus textfile output.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Textfile string `yaml:"textfile"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	conn := sqlite.DefaultConnectionConfig()
	return Config{
		Database: DatabaseConfig{
			AppID:       DefaultAppID,
			BusyTimeout: conn.BusyTimeout,
			JournalMode: conn.JournalMode,
			Synchronous: conn.Synchronous,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path and the process environment, in that order of precedence.
// Environment variables in the format ${VAR_NAME} are expanded inside the
// file before parsing.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
		if err := parseDurations(&cfg); err != nil {
			return Config{}, fmt.Errorf("parsing durations: %w", err)
		}
	}

	if err := applyEnvironment(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to "".
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})
}

func parseDurations(cfg *Config) error {
	if cfg.Database.BusyTimeoutRaw != "" {
		timeout, err := time.ParseDuration(cfg.Database.BusyTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing busy_timeout %q: %w", cfg.Database.BusyTimeoutRaw, err)
		}
		cfg.Database.BusyTimeout = timeout
	}
	return nil
}

// applyEnvironment overrides cfg from READINGLIST_* variables. Every
// malformed value is reported at once.
func applyEnvironment(cfg *Config) error {
	invalid := make([]string, 0, 2)

	if root := strings.TrimSpace(os.Getenv("READINGLIST_CONFIG_DIR")); root != "" {
		cfg.Database.Root = root
	}
	if appID := strings.TrimSpace(os.Getenv("READINGLIST_APP_ID")); appID != "" {
		cfg.Database.AppID = appID
	}

	if timeoutValue := strings.TrimSpace(os.Getenv("READINGLIST_BUSY_TIMEOUT")); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout < 0 {
			invalid = append(invalid, "READINGLIST_BUSY_TIMEOUT")
		} else {
			cfg.Database.BusyTimeout = timeout
		}
	}

	if mode := strings.TrimSpace(os.Getenv("READINGLIST_JOURNAL_MODE")); mode != "" {
		cfg.Database.JournalMode = mode
	}
	if level := strings.TrimSpace(os.Getenv("READINGLIST_LOG_LEVEL")); level != "" {
		cfg.Log.Level = level
	}
	if format := strings.TrimSpace(os.Getenv("READINGLIST_LOG_FORMAT")); format != "" {
		cfg.Log.Format = format
	}

	if sqlValue := strings.TrimSpace(os.Getenv("READINGLIST_LOG_SQL")); sqlValue != "" {
		enabled, err := strconv.ParseBool(sqlValue)
		if err != nil {
			invalid = append(invalid, "READINGLIST_LOG_SQL")
		} else {
			cfg.Log.SQL = enabled
		}
	}

	if textfile := strings.TrimSpace(os.Getenv("READINGLIST_METRICS_TEXTFILE")); textfile != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Textfile = textfile
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid environment variables: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// Validate checks that the configuration can be used to open the database.
func (c Config) Validate() error {
	var err error

	if c.Database.Root == "" && strings.TrimSpace(c.Database.AppID) == "" {
		err = multierr.Append(err, errors.New("database.app_id is required when database.root is not set"))
	}
	if c.Database.Root != "" && !filepath.IsAbs(c.Database.Root) {
		err = multierr.Append(err, fmt.Errorf("database.root must be an absolute path, got %q", c.Database.Root))
	}
	if connErr := c.Connection().Validate(); connErr != nil {
		err = multierr.Append(err, fmt.Errorf("database: %w", connErr))
	}
	if _, levelErr := logging.ParseLevel(c.Log.Level); levelErr != nil {
		err = multierr.Append(err, fmt.Errorf("log.level: %w", levelErr))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		err = multierr.Append(err, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	if c.Metrics.Enabled && c.Metrics.Textfile == "" {
		err = multierr.Append(err, errors.New("metrics.textfile is required when metrics are enabled"))
	}

	return err
}

// RootProvider returns the provider for the database root directory.
func (c Config) RootProvider() sqlite.RootProvider {
	if c.Database.Root != "" {
		return sqlite.StaticRoot(c.Database.Root)
	}
	return sqlite.UserConfigRoot(c.Database.AppID)
}

// Connection returns the SQLite connection settings.
func (c Config) Connection() sqlite.ConnectionConfig {
	conn := sqlite.DefaultConnectionConfig()
	conn.BusyTimeout = c.Database.BusyTimeout
	conn.JournalMode = c.Database.JournalMode
	conn.Synchronous = c.Database.Synchronous
	conn.LogSQL = c.Log.SQL
	return conn
}
