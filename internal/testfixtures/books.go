package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/readinglist/internal/persistence"
)

var bookCounter uint64

// BookOption mutates a book fixture.
type BookOption func(*persistence.Book)

// WithTags sets the book's tags.
func WithTags(tags ...string) BookOption {
	return func(b *persistence.Book) {
		b.Tags = append([]string(nil), tags...)
	}
}

// WithAuthor sets the author name.
func WithAuthor(name string) BookOption {
	return func(b *persistence.Book) {
		b.AuthorName = &name
	}
}

// InsertedAt sets the insertion date.
func InsertedAt(t time.Time) BookOption {
	return func(b *persistence.Book) {
		b.DateInserted = t
	}
}

// NewBook returns a deterministic book with a unique identifier, inserted
// one minute after the previous fixture.
func NewBook(opts ...BookOption) persistence.Book {
	seq := atomic.AddUint64(&bookCounter, 1)
	book := persistence.Book{
		BookID:       fmt.Sprintf("book-%d", seq),
		ForeignURL:   fmt.Sprintf("https://example.org/books/%d", seq),
		Title:        fmt.Sprintf("Fixture Book %d", seq),
		DateInserted: ReferenceTime().Add(time.Duration(seq) * time.Minute),
	}
	for _, opt := range opts {
		opt(&book)
	}
	return book
}
