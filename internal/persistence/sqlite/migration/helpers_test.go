package migration

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// openTestDB opens a file-backed SQLite database in a temporary directory.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "application.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func bookCatalog() Catalog {
	return NewCatalog(Step{
		Version:     1,
		Description: "create_book",
		Statements:  []string{"CREATE TABLE book (bookID TEXT PRIMARY KEY, title TEXT NOT NULL)"},
	})
}

func tableExists(t *testing.T, db *sqlx.DB, name string) bool {
	t.Helper()

	var count int
	err := db.Get(&count, `SELECT COUNT(*) FROM sqlite_schema WHERE type = 'table' AND name = ?`, name)
	require.NoError(t, err)
	return count > 0
}
