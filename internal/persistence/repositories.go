package persistence

import "context"

// BookRepository stores reading list entries and their tags.
type BookRepository interface {
	InsertBook(ctx context.Context, book Book) error
	GetBook(ctx context.Context, id string) (Book, error)
	ListBooks(ctx context.Context) ([]Book, error)
	CountBooks(ctx context.Context) (int, error)
}
