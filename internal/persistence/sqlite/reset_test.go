package sqlite

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/example/readinglist/internal/catalog"
	"github.com/example/readinglist/internal/persistence/sqlite/migration"
)

func resolveTemp(t *testing.T) Location {
	t.Helper()

	loc, err := Resolve(StaticRoot(filepath.Join(t.TempDir(), "com.example.readinglist")))
	require.NoError(t, err)
	return loc
}

func TestReset_MissingRoot(t *testing.T) {
	loc := resolveTemp(t)

	result, err := Reset(context.Background(), loc, catalog.Default(), WithResetLogger(discardLogger()))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.NoError(t, result.Warnings)

	info, err := os.Stat(loc.Primary)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestReset_RemovesEverythingUnderRoot(t *testing.T) {
	loc := resolveTemp(t)
	require.NoError(t, os.MkdirAll(loc.Root, 0o755))

	for _, file := range []string{loc.Primary, loc.WAL, loc.SHM, filepath.Join(loc.Root, "notes.txt")} {
		require.NoError(t, os.WriteFile(file, []byte("stale"), 0o644))
	}

	result, err := Reset(context.Background(), loc, catalog.Default(), WithResetLogger(discardLogger()))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)

	_, err = os.Stat(filepath.Join(loc.Root, "notes.txt"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	db, err := OpenDatabase(context.Background(), loc.Primary, DefaultConnectionConfig(), discardLogger())
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, catalog.ApplicationTables, tableNames(t, db))
}

func TestReset_RemovalWarningsFallBackToFiles(t *testing.T) {
	loc := resolveTemp(t)
	require.NoError(t, os.MkdirAll(loc.Root, 0o755))
	for _, file := range loc.Files() {
		require.NoError(t, os.WriteFile(file, []byte("stale"), 0o644))
	}

	denied := errors.New("permission denied")
	var removed []string
	remove := func(path string) error {
		removed = append(removed, path)
		return os.Remove(path)
	}

	result, err := Reset(context.Background(), loc, catalog.Default(),
		WithResetLogger(discardLogger()),
		withRemovers(func(string) error { return denied }, remove),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, loc.Files(), removed)

	warnings := multierr.Errors(result.Warnings)
	require.Len(t, warnings, 1)
	assert.ErrorIs(t, warnings[0], denied)
}

func TestReset_PrimarySurvivesRemoval(t *testing.T) {
	loc := resolveTemp(t)
	require.NoError(t, os.MkdirAll(loc.Root, 0o755))
	require.NoError(t, os.WriteFile(loc.Primary, []byte("stale"), 0o644))

	denied := errors.New("permission denied")
	fail := func(string) error { return denied }

	result, err := Reset(context.Background(), loc, catalog.Default(),
		WithResetLogger(discardLogger()),
		withRemovers(fail, fail),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResetFailed)
	assert.ErrorIs(t, err, fs.ErrExist)

	var resetErr *ResetError
	require.ErrorAs(t, err, &resetErr)
	assert.Equal(t, StageCreateDatabase, resetErr.Stage)
	assert.Len(t, multierr.Errors(result.Warnings), 4)
}

func TestReset_RecreateDirectoryFailure(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(parent, []byte("not a directory"), 0o644))

	loc, err := Resolve(StaticRoot(filepath.Join(parent, "root")))
	require.NoError(t, err)

	_, err = Reset(context.Background(), loc, catalog.Default(), WithResetLogger(discardLogger()))
	var resetErr *ResetError
	require.ErrorAs(t, err, &resetErr)
	assert.Equal(t, StageRecreateDirectory, resetErr.Stage)
}

func TestReset_MigrationFailure(t *testing.T) {
	loc := resolveTemp(t)
	broken := migration.NewCatalog(
		migration.Step{Version: 1, Description: "ok", Statements: []string{"CREATE TABLE a (id INTEGER)"}},
		migration.Step{Version: 2, Description: "broken", Statements: []string{"CREATE TABLE"}},
	)

	result, err := Reset(context.Background(), loc, broken, WithResetLogger(discardLogger()))
	require.Error(t, err)
	assert.Equal(t, 1, result.Applied)

	var resetErr *ResetError
	require.ErrorAs(t, err, &resetErr)
	assert.Equal(t, StageMigrate, resetErr.Stage)

	var stepErr *migration.StepFailure
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, int64(2), stepErr.Version)
}

func TestReset_Completeness(t *testing.T) {
	ctx := context.Background()
	db := newMigratedDatabase(t)
	books := NewBookRepository(db)

	for _, id := range []string{"b1", "b2", "b3"} {
		require.NoError(t, books.InsertBook(ctx, sampleBook(id)))
	}
	count, err := books.CountBooks(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	result, err := db.ResetDatabase(ctx)
	require.NoError(t, err)
	assert.Equal(t, catalog.Default().Len(), result.Applied)

	count, err = books.CountBooks(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, catalog.Default().Latest(), maxVersion(t, db))
}
