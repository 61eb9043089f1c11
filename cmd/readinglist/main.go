package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/readinglist/internal/catalog"
	"github.com/example/readinglist/internal/config"
	"github.com/example/readinglist/internal/logging"
	"github.com/example/readinglist/internal/metrics"
	"github.com/example/readinglist/internal/persistence/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if code := run(ctx, os.Args[1:], os.Stdout, os.Stderr); code != 0 {
		stop()
		os.Exit(code)
	}
}

// run executes one CLI invocation and returns the process exit code. The
// database is closed and metrics are written even when the command fails.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := newRootCommand(a)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if terr := a.teardown(ctx); err == nil {
		err = terr
	}
	if err != nil {
		fmt.Fprintln(stderr, color.RedString("error: %v", err))
		return 1
	}
	return 0
}

// app carries the state shared by every subcommand of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	noColor    bool

	cfg       config.Config
	logger    *slog.Logger
	collector *metrics.Collector
	database  *sqlite.Database
	migrated  bool
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "readinglist",
		Short:         "Manage the reading list database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (YAML)")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newMigrateCommand(a),
		newStatusCommand(a),
		newResetCommand(a),
		newPathCommand(a),
		newBooksCommand(a),
		newGreetCommand(a),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if a.noColor {
		color.NoColor = true
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return a.fail("failed to load configuration", err)
	}
	a.cfg = cfg

	logger, err := logging.New(a.stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return a.fail("failed to build logger", err)
	}
	a.logger = logger

	if cfg.Metrics.Enabled {
		a.collector = metrics.NewCollector()
	}

	cmd.SetContext(logging.ContextWithLogger(cmd.Context(), logger))
	return nil
}

// open resolves the database location. With ensureRoot the host root
// directory is created when missing, which is the host's duty before the
// first connection.
func (a *app) open(ctx context.Context, ensureRoot bool) (*sqlite.Database, error) {
	if a.database != nil {
		return a.database, nil
	}

	dbCfg := sqlite.Config{
		Root:       a.cfg.RootProvider(),
		Catalog:    catalog.Default(),
		Connection: a.cfg.Connection(),
		Logger:     a.logger,
	}
	if a.collector != nil {
		dbCfg.Observer = a.collector
	}

	db, err := sqlite.Open(ctx, dbCfg)
	if err != nil {
		return nil, a.fail("failed to resolve database location", err)
	}

	if ensureRoot {
		if err := os.MkdirAll(db.DatabaseRootPath(), 0o755); err != nil {
			return nil, a.fail("failed to create configuration directory", err)
		}
	}

	a.database = db
	return db, nil
}

// startup opens the database and applies pending migrations.
func (a *app) startup(ctx context.Context) (*sqlite.Database, int, error) {
	db, err := a.open(ctx, true)
	if err != nil {
		return nil, 0, err
	}
	applied, err := db.ApplyMigrationsAtStartup(ctx)
	if err != nil {
		return nil, applied, a.fail("failed to apply migrations", err)
	}
	a.migrated = true
	return db, applied, nil
}

func (a *app) teardown(ctx context.Context) error {
	if a.collector != nil {
		if a.database != nil && a.migrated {
			if status, err := a.database.Status(ctx); err == nil {
				a.collector.ObserveStatus(status)
			}
		}
		if err := a.collector.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			a.logger.Warn("failed to write metrics", "error", err)
		}
	}

	if a.database == nil {
		return nil
	}
	db := a.database
	a.database = nil
	if err := db.Close(); err != nil {
		return a.fail("failed to close database", err)
	}
	return nil
}

// fail logs err with its kind and returns it unchanged for cobra.
func (a *app) fail(msg string, err error) error {
	logger := a.logger
	if logger == nil {
		fmt.Fprintf(a.stderr, "%s: %v\n", msg, err)
		return err
	}
	logger.Error(msg, "error", err, "error_kind", errorKind(err))
	return err
}
