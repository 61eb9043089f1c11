package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/readinglist/internal/catalog"
	"github.com/example/readinglist/internal/persistence"
)

func sampleBook(id string) persistence.Book {
	return persistence.Book{
		BookID:       id,
		ForeignURL:   "https://example.org/books/" + id,
		Title:        "Book " + id,
		DateInserted: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBookRepository_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewBookRepository(newMigratedDatabase(t))

	cover := "https://example.org/cover.png"
	author := "Ada"
	lastChapter := time.Date(2024, 3, 5, 8, 30, 0, 0, time.UTC)

	book := sampleBook("b1")
	book.CoverURL = &cover
	book.AuthorName = &author
	book.DateLastChapter = &lastChapter
	book.CountChapters = 12
	book.Tags = []string{"fantasy", " ", "adventure", "fantasy"}

	require.NoError(t, repo.InsertBook(ctx, book))

	got, err := repo.GetBook(ctx, "b1")
	require.NoError(t, err)

	assert.Equal(t, "b1", got.BookID)
	assert.Equal(t, book.ForeignURL, got.ForeignURL)
	assert.Equal(t, book.Title, got.Title)
	require.NotNil(t, got.CoverURL)
	assert.Equal(t, cover, *got.CoverURL)
	require.NotNil(t, got.AuthorName)
	assert.Equal(t, author, *got.AuthorName)
	assert.True(t, book.DateInserted.Equal(got.DateInserted))
	require.NotNil(t, got.DateLastChapter)
	assert.True(t, lastChapter.Equal(*got.DateLastChapter))
	assert.Nil(t, got.DateFirstChapter)
	assert.Nil(t, got.DateLastRead)
	assert.Equal(t, 12, got.CountChapters)
	assert.Equal(t, []string{"adventure", "fantasy"}, got.Tags)
}

func TestBookRepository_DefaultInsertDate(t *testing.T) {
	ctx := context.Background()
	repo := NewBookRepository(newMigratedDatabase(t))
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	book := sampleBook("b1")
	book.DateInserted = time.Time{}
	require.NoError(t, repo.InsertBook(ctx, book))

	got, err := repo.GetBook(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, fixed.Equal(got.DateInserted))
}

func TestBookRepository_ColumnDefaults(t *testing.T) {
	ctx := context.Background()
	db := newMigratedDatabase(t)
	repo := NewBookRepository(db)

	err := db.View(ctx, func(ctx context.Context, conn *sqlx.DB) error {
		_, err := conn.ExecContext(ctx,
			`INSERT INTO WBR_book (bookID, foreignUrl, title) VALUES ('raw', 'https://example.org', 'Raw')`)
		return err
	})
	require.NoError(t, err)

	got, err := repo.GetBook(ctx, "raw")
	require.NoError(t, err)
	assert.False(t, got.DateInserted.IsZero(), "CURRENT_TIMESTAMP default should be parsed")
	assert.Zero(t, got.CountChapters)
	assert.Nil(t, got.CoverURL)
	assert.Empty(t, got.Tags)
}

func TestBookRepository_Errors(t *testing.T) {
	ctx := context.Background()
	repo := NewBookRepository(newMigratedDatabase(t))

	_, err := repo.GetBook(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	require.NoError(t, repo.InsertBook(ctx, sampleBook("dup")))
	err = repo.InsertBook(ctx, sampleBook("dup"))
	assert.ErrorIs(t, err, persistence.ErrAlreadyExists)

	err = repo.InsertBook(ctx, sampleBook(""))
	assert.Error(t, err)
}

func TestBookRepository_TagFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newMigratedDatabase(t)
	repo := NewBookRepository(db)

	err := db.View(ctx, func(ctx context.Context, conn *sqlx.DB) error {
		_, err := conn.ExecContext(ctx, `INSERT INTO WBR_bookTag (bookID, tagName) VALUES ('b1', 'taken')`)
		return err
	})
	require.NoError(t, err)

	book := sampleBook("b1")
	book.Tags = []string{"taken"}
	require.Error(t, repo.InsertBook(ctx, book))

	_, err = repo.GetBook(ctx, "b1")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestBookRepository_ListAndCount(t *testing.T) {
	ctx := context.Background()
	repo := NewBookRepository(newMigratedDatabase(t))

	older := sampleBook("older")
	older.DateInserted = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	older.Tags = []string{"classic"}
	newer := sampleBook("newer")
	newer.DateInserted = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.InsertBook(ctx, older))
	require.NoError(t, repo.InsertBook(ctx, newer))

	books, err := repo.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "newer", books[0].BookID)
	assert.Equal(t, "older", books[1].BookID)
	assert.Equal(t, []string{"classic"}, books[1].Tags)
	assert.Empty(t, books[0].Tags)

	count, err := repo.CountBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestBookRepository_RequiresMigration(t *testing.T) {
	repo := NewBookRepository(newTestDatabase(t, catalog.Default()))

	_, err := repo.CountBooks(context.Background())
	assert.ErrorIs(t, err, ErrNotMigrated)
}

func TestNullTime_Scan(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value any
		valid bool
	}{
		{name: "nil", value: nil},
		{name: "time", value: want, valid: true},
		{name: "rfc3339", value: "2024-03-01T12:00:00Z", valid: true},
		{name: "sqlite default", value: "2024-03-01 12:00:00", valid: true},
		{name: "bytes", value: []byte("2024-03-01T12:00:00Z"), valid: true},
		{name: "offset", value: "2024-03-01 14:00:00+02:00", valid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n nullTime
			require.NoError(t, n.Scan(tt.value))
			assert.Equal(t, tt.valid, n.Valid)
			if tt.valid {
				assert.True(t, want.Equal(n.Time), "got %v", n.Time)
			}
		})
	}

	var n nullTime
	assert.Error(t, n.Scan("yesterday"))
	assert.Error(t, n.Scan(42))
}
