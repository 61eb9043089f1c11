package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/example/readinglist/internal/persistence"
)

// BookRepository implements persistence.BookRepository on the WBR_book and
// WBR_bookTag tables. Every call goes through Database.View.
type BookRepository struct {
	db  *Database
	now func() time.Time
}

var _ persistence.BookRepository = (*BookRepository)(nil)

// NewBookRepository creates a repository bound to db.
func NewBookRepository(db *Database) *BookRepository {
	return &BookRepository{db: db, now: db.now}
}

type bookRow struct {
	BookID           string         `db:"bookID"`
	ForeignURL       string         `db:"foreignUrl"`
	Title            string         `db:"title"`
	CoverURL         sql.NullString `db:"coverUrl"`
	AuthorName       sql.NullString `db:"authorName"`
	DateInserted     nullTime       `db:"dateInserted"`
	DateLastChapter  nullTime       `db:"dateLastChapter"`
	DateFirstChapter nullTime       `db:"dateFirstChapter"`
	DateLastRead     nullTime       `db:"dateLastRead"`
	CountChapters    sql.NullInt64  `db:"countChapters"`
}

const selectBooks = `
	SELECT bookID, foreignUrl, title, coverUrl, authorName, dateInserted,
	       dateLastChapter, dateFirstChapter, dateLastRead, countChapters
	FROM WBR_book`

// InsertBook stores a book and its tags in one transaction.
func (r *BookRepository) InsertBook(ctx context.Context, book persistence.Book) error {
	if strings.TrimSpace(book.BookID) == "" {
		return fmt.Errorf("insert book: empty book id")
	}
	if book.DateInserted.IsZero() {
		book.DateInserted = r.now()
	}

	return r.db.View(ctx, func(ctx context.Context, db *sqlx.DB) (err error) {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() {
			if err != nil {
				_ = tx.Rollback()
			}
		}()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO WBR_book (bookID, foreignUrl, title, coverUrl, authorName, dateInserted,
			                      dateLastChapter, dateFirstChapter, dateLastRead, countChapters)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			book.BookID,
			book.ForeignURL,
			book.Title,
			book.CoverURL,
			book.AuthorName,
			formatTime(book.DateInserted),
			formatOptionalTime(book.DateLastChapter),
			formatOptionalTime(book.DateFirstChapter),
			formatOptionalTime(book.DateLastRead),
			book.CountChapters,
		)
		if err != nil {
			return mapBookError(err)
		}

		for _, tag := range uniqueTags(book.Tags) {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO WBR_bookTag (bookID, tagName) VALUES (?, ?)`, book.BookID, tag); err != nil {
				return fmt.Errorf("insert tag %q: %w", tag, err)
			}
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

// GetBook retrieves a book by id.
func (r *BookRepository) GetBook(ctx context.Context, id string) (persistence.Book, error) {
	var book persistence.Book
	err := r.db.View(ctx, func(ctx context.Context, db *sqlx.DB) error {
		var row bookRow
		if err := db.GetContext(ctx, &row, selectBooks+` WHERE bookID = ?`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.ErrNotFound
			}
			return fmt.Errorf("get book %s: %w", id, err)
		}

		var tags []string
		if err := db.SelectContext(ctx, &tags,
			`SELECT tagName FROM WBR_bookTag WHERE bookID = ? ORDER BY tagName`, id); err != nil {
			return fmt.Errorf("get tags for book %s: %w", id, err)
		}

		book = row.toBook(tags)
		return nil
	})
	return book, err
}

// ListBooks returns every book ordered by insertion date, newest first.
func (r *BookRepository) ListBooks(ctx context.Context) ([]persistence.Book, error) {
	var books []persistence.Book
	err := r.db.View(ctx, func(ctx context.Context, db *sqlx.DB) error {
		var rows []bookRow
		if err := db.SelectContext(ctx, &rows, selectBooks+` ORDER BY dateInserted DESC, bookID`); err != nil {
			return fmt.Errorf("list books: %w", err)
		}

		var tagRows []struct {
			BookID  string `db:"bookID"`
			TagName string `db:"tagName"`
		}
		if err := db.SelectContext(ctx, &tagRows,
			`SELECT bookID, tagName FROM WBR_bookTag ORDER BY bookID, tagName`); err != nil {
			return fmt.Errorf("list tags: %w", err)
		}
		tags := make(map[string][]string)
		for _, tr := range tagRows {
			tags[tr.BookID] = append(tags[tr.BookID], tr.TagName)
		}

		books = make([]persistence.Book, 0, len(rows))
		for _, row := range rows {
			books = append(books, row.toBook(tags[row.BookID]))
		}
		return nil
	})
	return books, err
}

// CountBooks returns the number of stored books.
func (r *BookRepository) CountBooks(ctx context.Context) (int, error) {
	var count int
	err := r.db.View(ctx, func(ctx context.Context, db *sqlx.DB) error {
		if err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM WBR_book`); err != nil {
			return fmt.Errorf("count books: %w", err)
		}
		return nil
	})
	return count, err
}

func (row bookRow) toBook(tags []string) persistence.Book {
	book := persistence.Book{
		BookID:           row.BookID,
		ForeignURL:       row.ForeignURL,
		Title:            row.Title,
		DateInserted:     row.DateInserted.Time,
		DateLastChapter:  row.DateLastChapter.ptr(),
		DateFirstChapter: row.DateFirstChapter.ptr(),
		DateLastRead:     row.DateLastRead.ptr(),
		CountChapters:    int(row.CountChapters.Int64),
		Tags:             tags,
	}
	if row.CoverURL.Valid {
		value := row.CoverURL.String
		book.CoverURL = &value
	}
	if row.AuthorName.Valid {
		value := row.AuthorName.String
		book.AuthorName = &value
	}
	return book
}

func mapBookError(err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return persistence.ErrAlreadyExists
		}
	}
	return fmt.Errorf("insert book: %w", err)
}

func uniqueTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		result = append(result, tag)
	}
	sort.Strings(result)
	return result
}

// timeLayouts are tried in order when a DATETIME column comes back as text.
// CURRENT_TIMESTAMP defaults use the second form.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// nullTime scans DATETIME columns whether the driver yields time.Time or text.
type nullTime struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner.
func (n *nullTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case string:
		return n.parse(v)
	case []byte:
		return n.parse(string(v))
	default:
		return fmt.Errorf("unsupported datetime value %T", value)
	}
}

func (n *nullTime) parse(value string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			n.Time, n.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognised datetime %q", value)
}

func (n nullTime) ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
