package book

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

const (
	dialectSQLite = "sqlite3"
	tableBooks    = "books"

	colID              = "id"
	colTitle           = "title"
	colAuthor          = "author"
	colISBN            = "isbn"
	colCategory        = "category"
	colTotalCopies     = "total_copies"
	colAvailableCopies = "available_copies"

	// SQLite's built-in lower() folds ASCII only.
	fnUnicodeLower = "unicode_lower"
)

var registerFuncsOnce sync.Once

func registerSQLiteFuncs() {
	registerFuncsOnce.Do(func() {
		sqlite.MustRegisterDeterministicScalarFunction(fnUnicodeLower, 1,
			func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				switch v := args[0].(type) {
				case string:
					return strings.ToLower(v), nil
				case []byte:
					return strings.ToLower(string(v)), nil
				default:
					return v, nil
				}
			})
	})
}

// sqlExecutor is satisfied by both *sql.DB and *sql.Tx.
type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteRepo stores books in a single SQLite file. The pool holds one
// connection, so transactions are serialized.
type SQLiteRepo struct {
	db      *sql.DB
	exec    sqlExecutor
	builder goqu.DialectWrapper
	inTx    bool
	timeout time.Duration
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, timeout time.Duration) (*SQLiteRepo, error) {
	registerSQLiteFuncs()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	return &SQLiteRepo{
		db:      db,
		exec:    db,
		builder: goqu.Dialect(dialectSQLite),
		timeout: timeout,
	}, nil
}

func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *SQLiteRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	bound := &SQLiteRepo{db: r.db, exec: tx, builder: r.builder, inTx: true, timeout: r.timeout}
	if err := fn(ctx, bound); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) Insert(ctx context.Context, b *Book) error {
	query, args, err := r.builder.Insert(tableBooks).Prepared(true).Rows(goqu.Record{
		colTitle:           b.Title,
		colAuthor:          b.Author,
		colISBN:            b.ISBN,
		colCategory:        string(b.Category),
		colTotalCopies:     b.TotalCopies,
		colAvailableCopies: b.AvailableCopies,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	res, err := r.exec.ExecContext(timeoutCtx, query, args...)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return duplicateISBN(b.ISBN)
		}
		return fmt.Errorf("insert book: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	b.ID = id
	return nil
}

func (r *SQLiteRepo) FindByID(ctx context.Context, id int64) (Book, error) {
	b, err := r.one(ctx, goqu.C(colID).Eq(id))
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, notFound(id)
	}
	if err != nil {
		return Book{}, fmt.Errorf("find book %d: %w", id, err)
	}
	return b, nil
}

func (r *SQLiteRepo) FindByISBN(ctx context.Context, isbn string) (Book, error) {
	b, err := r.one(ctx, goqu.C(colISBN).Eq(isbn))
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, &Error{Kind: KindNotFound, Message: fmt.Sprintf("book not found with isbn: %s", isbn)}
	}
	if err != nil {
		return Book{}, fmt.Errorf("find book by isbn: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepo) ExistsByISBN(ctx context.Context, isbn string) (bool, error) {
	n, err := r.count(ctx, goqu.C(colISBN).Eq(isbn))
	return n > 0, err
}

func (r *SQLiteRepo) Update(ctx context.Context, b *Book) error {
	query, args, err := r.builder.Update(tableBooks).Prepared(true).Set(goqu.Record{
		colTitle:           b.Title,
		colAuthor:          b.Author,
		colISBN:            b.ISBN,
		colCategory:        string(b.Category),
		colTotalCopies:     b.TotalCopies,
		colAvailableCopies: b.AvailableCopies,
	}).Where(goqu.C(colID).Eq(b.ID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	res, err := r.exec.ExecContext(timeoutCtx, query, args...)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return duplicateISBN(b.ISBN)
		}
		return fmt.Errorf("update book %d: %w", b.ID, err)
	}
	return requireRow(res, b.ID)
}

func (r *SQLiteRepo) Delete(ctx context.Context, id int64) error {
	query, args, err := r.builder.Delete(tableBooks).Prepared(true).Where(goqu.C(colID).Eq(id)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	res, err := r.exec.ExecContext(timeoutCtx, query, args...)
	if err != nil {
		return fmt.Errorf("delete book %d: %w", id, err)
	}
	return requireRow(res, id)
}

func (r *SQLiteRepo) FindAll(ctx context.Context) ([]Book, error) {
	return r.list(ctx)
}

func (r *SQLiteRepo) FindByCategory(ctx context.Context, c Category) ([]Book, error) {
	return r.list(ctx, goqu.C(colCategory).Eq(string(c)))
}

func (r *SQLiteRepo) FindByAuthorContains(ctx context.Context, author string) ([]Book, error) {
	return r.list(ctx, containsFold(colAuthor, author))
}

func (r *SQLiteRepo) FindByTitleContains(ctx context.Context, title string) ([]Book, error) {
	return r.list(ctx, containsFold(colTitle, title))
}

func (r *SQLiteRepo) FindByAuthorContainsAndCategory(ctx context.Context, author string, c Category) ([]Book, error) {
	return r.list(ctx, containsFold(colAuthor, author), goqu.C(colCategory).Eq(string(c)))
}

func (r *SQLiteRepo) FindAvailable(ctx context.Context) ([]Book, error) {
	return r.list(ctx, goqu.C(colAvailableCopies).Gt(0))
}

func (r *SQLiteRepo) CountByCategory(ctx context.Context, c Category) (int, error) {
	return r.count(ctx, goqu.C(colCategory).Eq(string(c)))
}

func (r *SQLiteRepo) selectBooks() *goqu.SelectDataset {
	return r.builder.From(tableBooks).Prepared(true).
		Select(colID, colTitle, colAuthor, colISBN, colCategory, colTotalCopies, colAvailableCopies)
}

func (r *SQLiteRepo) one(ctx context.Context, where exp.Expression) (Book, error) {
	query, args, err := r.selectBooks().Where(where).Limit(1).ToSQL()
	if err != nil {
		return Book{}, fmt.Errorf("build select: %w", err)
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanSQLiteBook(r.exec.QueryRowContext(timeoutCtx, query, args...))
}

func (r *SQLiteRepo) list(ctx context.Context, where ...exp.Expression) ([]Book, error) {
	query, args, err := r.selectBooks().Where(where...).Order(goqu.C(colID).Asc()).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.exec.QueryContext(timeoutCtx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Book, 0)
	for rows.Next() {
		b, err := scanSQLiteBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) count(ctx context.Context, where exp.Expression) (int, error) {
	query, args, err := r.builder.From(tableBooks).Prepared(true).
		Select(goqu.COUNT(goqu.Star())).Where(where).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var n int
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err = r.exec.QueryRowContext(timeoutCtx, query, args...).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteBook(row rowScanner) (Book, error) {
	var b Book
	var category string
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &category, &b.TotalCopies, &b.AvailableCopies); err != nil {
		return Book{}, err
	}
	b.Category = Category(category)
	return b, nil
}

// containsFold matches col containing s, ignoring case beyond ASCII.
func containsFold(col, s string) exp.Expression {
	return goqu.L(fnUnicodeLower+"("+col+") LIKE ? ESCAPE '\\'", containsPattern(strings.ToLower(s)))
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// primary result code only, when extended codes are off
		return strings.Contains(sqliteErr.Error(), "UNIQUE")
	default:
		return false
	}
}
