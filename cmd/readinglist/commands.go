package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/example/readinglist/internal/persistence"
	"github.com/example/readinglist/internal/persistence/sqlite"
	"github.com/example/readinglist/internal/persistence/sqlite/migration"
)

// errResetNotConfirmed is returned when reset runs without --yes.
var errResetNotConfirmed = errors.New("reset deletes all local data; rerun with --yes to confirm")

func errorKind(err error) string {
	switch {
	case errors.Is(err, sqlite.ErrLocationUnavailable):
		return "location_unavailable"
	case errors.Is(err, sqlite.ErrResetFailed):
		return "reset_failed"
	case errors.Is(err, sqlite.ErrNotMigrated):
		return "not_migrated"
	default:
		return migration.ErrorKind(err)
	}
}

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, applied, err := a.startup(cmd.Context())
			if err != nil {
				return err
			}

			green := color.New(color.FgGreen)
			if applied == 0 {
				green.Fprintln(a.stdout, "Database schema is up to date")
				return nil
			}
			green.Fprintf(a.stdout, "Applied %d migration(s)\n", applied)
			return nil
		},
	}
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			status, err := db.Status(cmd.Context())
			if err != nil {
				return a.fail("failed to read migration status", err)
			}
			printStatus(a, db, status)
			return nil
		},
	}
}

func printStatus(a *app, db *sqlite.Database, status migration.Status) {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	cyan.Fprintf(a.stdout, "Database: %s\n", db.Location().Primary)
	fmt.Fprintf(a.stdout, "Schema version: %d (latest %d)\n\n", status.CurrentVersion, status.LatestVersion)

	drifted := make(map[int64]bool, len(status.Drifted))
	for _, version := range status.Drifted {
		drifted[version] = true
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tDESCRIPTION\tSTATE\tAPPLIED AT")
	for _, record := range status.Applied {
		state := green.Sprint("applied")
		if drifted[record.Version] {
			state = red.Sprint("drifted")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", record.Version, record.Description, state,
			record.AppliedAt.Local().Format(time.DateTime))
	}
	for _, version := range status.Skipped {
		fmt.Fprintf(tw, "%d\t-\t%s\t-\n", version, red.Sprint("skipped"))
	}
	for _, step := range status.Pending {
		fmt.Fprintf(tw, "%d\t%s\t%s\t-\n", step.Version, step.Description, yellow.Sprint("pending"))
	}
	_ = tw.Flush()

	if status.Ahead {
		yellow.Fprintln(a.stdout, "\nThe database was migrated by a newer build of readinglist.")
	}
}

func newResetCommand(a *app) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all local data and recreate an empty database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return errResetNotConfirmed
			}

			db, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}

			result, err := db.ResetDatabase(cmd.Context())
			for _, warning := range multierr.Errors(result.Warnings) {
				color.New(color.FgYellow).Fprintf(a.stderr, "warning: %v\n", warning)
			}
			if err != nil {
				color.New(color.FgRed).Fprintln(a.stderr,
					"Reset failed. Local data may be partially deleted; run reset again.")
				return a.fail("failed to reset database", err)
			}

			a.migrated = true
			color.New(color.FgGreen).Fprintf(a.stdout, "Database reset, %d migration(s) applied\n", result.Applied)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "Confirm deletion of all local data")
	return cmd
}

func newPathCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the database root directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, db.DatabaseRootPath())
			return nil
		},
	}
}

func newBooksCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "List books in the reading list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, _, err := a.startup(cmd.Context())
			if err != nil {
				return err
			}

			books, err := sqlite.NewBookRepository(db).ListBooks(cmd.Context())
			if err != nil {
				return a.fail("failed to list books", err)
			}
			if len(books) == 0 {
				fmt.Fprintln(a.stdout, "No books yet")
				return nil
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tCHAPTERS\tTAGS")
			for _, book := range books {
				author := "-"
				if book.AuthorName != nil {
					author = *book.AuthorName
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					book.BookID, book.Title, author, book.CountChapters, strings.Join(book.Tags, ","))
			}
			return tw.Flush()
		},
	}
	cmd.AddCommand(newBooksAddCommand(a))
	return cmd
}

func newBooksAddCommand(a *app) *cobra.Command {
	var (
		book   persistence.Book
		author string
		cover  string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a book to the reading list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, _, err := a.startup(cmd.Context())
			if err != nil {
				return err
			}

			if author != "" {
				book.AuthorName = &author
			}
			if cover != "" {
				book.CoverURL = &cover
			}

			if err := sqlite.NewBookRepository(db).InsertBook(cmd.Context(), book); err != nil {
				if errors.Is(err, persistence.ErrAlreadyExists) {
					return fmt.Errorf("book %q already exists", book.BookID)
				}
				return a.fail("failed to add book", err)
			}
			color.New(color.FgGreen).Fprintf(a.stdout, "Added %s\n", book.BookID)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&book.BookID, "id", "", "Book identifier")
	flags.StringVar(&book.ForeignURL, "url", "", "Source URL of the book")
	flags.StringVar(&book.Title, "title", "", "Book title")
	flags.StringVar(&author, "author", "", "Author name")
	flags.StringVar(&cover, "cover", "", "Cover image URL")
	flags.StringSliceVar(&book.Tags, "tag", nil, "Tag (repeatable)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newGreetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "greet NAME",
		Short: "Print a greeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			fmt.Fprintln(a.stdout, greet(args[0]))
			return nil
		},
	}
}

func greet(name string) string {
	return fmt.Sprintf("Hello, %s! You've been greeted from Go!", name)
}
