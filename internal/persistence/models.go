package persistence

import "time"

// Book is an entry of the reading list.
type Book struct {
	BookID           string
	ForeignURL       string
	Title            string
	CoverURL         *string
	AuthorName       *string
	DateInserted     time.Time
	DateLastChapter  *time.Time
	DateFirstChapter *time.Time
	DateLastRead     *time.Time
	CountChapters    int
	Tags             []string
}
