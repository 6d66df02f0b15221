package book

import (
	"context"
)

//go:generate mockgen -source=ports.go -destination=mock_repository_test.go -package=book

// Repository defines the contract for book data storage.
//
// Lookups by id return an error matching ErrNotFound on a miss; Insert and
// Update return one matching ErrDuplicateISBN when the isbn is taken.
// List results are ordered by id.
type Repository interface {
	Insert(ctx context.Context, b *Book) error
	FindByID(ctx context.Context, id int64) (Book, error)
	FindByISBN(ctx context.Context, isbn string) (Book, error)
	ExistsByISBN(ctx context.Context, isbn string) (bool, error)
	Update(ctx context.Context, b *Book) error
	Delete(ctx context.Context, id int64) error

	FindAll(ctx context.Context) ([]Book, error)
	FindByCategory(ctx context.Context, c Category) ([]Book, error)
	FindByAuthorContains(ctx context.Context, author string) ([]Book, error)
	FindByTitleContains(ctx context.Context, title string) ([]Book, error)
	FindByAuthorContainsAndCategory(ctx context.Context, author string, c Category) ([]Book, error)
	FindAvailable(ctx context.Context) ([]Book, error)
	CountByCategory(ctx context.Context, c Category) (int, error)

	// WithinTx runs fn against a repository bound to a single transaction.
	// Rows read through the bound repository stay locked until fn returns.
	// The transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error

	Ping(ctx context.Context) error
}
