package book

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema/postgres.sql
var postgresSchema string

const pgUniqueViolation = "23505"

const pgSelectBooks = `
	SELECT id, title, author, isbn, category, total_copies, available_copies
	FROM books`

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresRepo struct {
	pool    *pgxpool.Pool
	db      pgQuerier
	inTx    bool
	timeout time.Duration
}

func NewPostgresRepo(pool *pgxpool.Pool, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{pool: pool, db: pool, timeout: timeout}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// EnsureSchema creates the books table when it does not exist yet.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	if _, err := r.pool.Exec(timeoutCtx, postgresSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	bound := &PostgresRepo{pool: r.pool, db: tx, inTx: true, timeout: r.timeout}
	if err := fn(ctx, bound); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Insert(ctx context.Context, b *Book) error {
	const query = `
		INSERT INTO books (title, author, isbn, category, total_copies, available_copies)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, query,
		b.Title, b.Author, b.ISBN, string(b.Category), b.TotalCopies, b.AvailableCopies,
	).Scan(&b.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return duplicateISBN(b.ISBN)
		}
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

// FindByID locks the row when called inside WithinTx.
func (r *PostgresRepo) FindByID(ctx context.Context, id int64) (Book, error) {
	query := pgSelectBooks + ` WHERE id = $1`
	if r.inTx {
		query += ` FOR UPDATE`
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	b, err := scanPGBook(r.db.QueryRow(timeoutCtx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Book{}, notFound(id)
		}
		return Book{}, fmt.Errorf("find book %d: %w", id, err)
	}
	return b, nil
}

func (r *PostgresRepo) FindByISBN(ctx context.Context, isbn string) (Book, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	b, err := scanPGBook(r.db.QueryRow(timeoutCtx, pgSelectBooks+` WHERE isbn = $1`, isbn))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Book{}, &Error{Kind: KindNotFound, Message: fmt.Sprintf("book not found with isbn: %s", isbn)}
		}
		return Book{}, fmt.Errorf("find book by isbn: %w", err)
	}
	return b, nil
}

func (r *PostgresRepo) ExistsByISBN(ctx context.Context, isbn string) (bool, error) {
	var exists bool
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, `SELECT EXISTS (SELECT 1 FROM books WHERE isbn = $1)`, isbn).Scan(&exists)
	return exists, err
}

func (r *PostgresRepo) Update(ctx context.Context, b *Book) error {
	const query = `
		UPDATE books
		SET title = $1, author = $2, isbn = $3, category = $4, total_copies = $5, available_copies = $6
		WHERE id = $7`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := r.db.Exec(timeoutCtx, query,
		b.Title, b.Author, b.ISBN, string(b.Category), b.TotalCopies, b.AvailableCopies, b.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return duplicateISBN(b.ISBN)
		}
		return fmt.Errorf("update book %d: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(b.ID)
	}
	return nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id int64) error {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := r.db.Exec(timeoutCtx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete book %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

func (r *PostgresRepo) FindAll(ctx context.Context) ([]Book, error) {
	return r.list(ctx, pgSelectBooks+` ORDER BY id`)
}

func (r *PostgresRepo) FindByCategory(ctx context.Context, c Category) ([]Book, error) {
	return r.list(ctx, pgSelectBooks+` WHERE category = $1 ORDER BY id`, string(c))
}

func (r *PostgresRepo) FindByAuthorContains(ctx context.Context, author string) ([]Book, error) {
	return r.list(ctx, pgSelectBooks+` WHERE author ILIKE $1 ORDER BY id`, containsPattern(author))
}

func (r *PostgresRepo) FindByTitleContains(ctx context.Context, title string) ([]Book, error) {
	return r.list(ctx, pgSelectBooks+` WHERE title ILIKE $1 ORDER BY id`, containsPattern(title))
}

func (r *PostgresRepo) FindByAuthorContainsAndCategory(ctx context.Context, author string, c Category) ([]Book, error) {
	return r.list(ctx, pgSelectBooks+` WHERE author ILIKE $1 AND category = $2 ORDER BY id`,
		containsPattern(author), string(c))
}

func (r *PostgresRepo) FindAvailable(ctx context.Context) ([]Book, error) {
	return r.list(ctx, pgSelectBooks+` WHERE available_copies > 0 ORDER BY id`)
}

func (r *PostgresRepo) CountByCategory(ctx context.Context, c Category) (int, error) {
	var count int
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, `SELECT COUNT(*) FROM books WHERE category = $1`, string(c)).Scan(&count)
	return count, err
}

func (r *PostgresRepo) list(ctx context.Context, query string, args ...any) ([]Book, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.db.Query(timeoutCtx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Book, 0)
	for rows.Next() {
		b, err := scanPGBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanPGBook(row pgx.Row) (Book, error) {
	var b Book
	var category string
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &category, &b.TotalCopies, &b.AvailableCopies); err != nil {
		return Book{}, err
	}
	b.Category = Category(category)
	return b, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// containsPattern builds a LIKE pattern matching s anywhere, with LIKE
// metacharacters in s taken literally.
func containsPattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
