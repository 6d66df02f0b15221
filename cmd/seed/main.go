package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"bookservice/internal/book"
	"bookservice/internal/config"
	"bookservice/internal/logger"
	"bookservice/internal/platform/openlibrary"
	"bookservice/internal/store"
)

func intPtr(i int) *int { return &i }

var sampleCatalog = []book.Draft{
	{Title: "Cien años de soledad", Author: "Gabriel García Márquez", ISBN: "978-0307474728", Category: book.CategoryFiction, TotalCopies: 5},
	{Title: "El amor en los tiempos del cólera", Author: "Gabriel García Márquez", ISBN: "978-0307387264", Category: book.CategoryFiction, TotalCopies: 3, AvailableCopies: intPtr(1)},
	{Title: "Don Quijote de la Mancha", Author: "Miguel de Cervantes", ISBN: "978-8424116378", Category: book.CategoryFiction, TotalCopies: 4},
	{Title: "Ficciones", Author: "Jorge Luis Borges", ISBN: "978-8420633121", Category: book.CategoryFiction, TotalCopies: 2, AvailableCopies: intPtr(0)},
	{Title: "Sapiens", Author: "Yuval Noah Harari", ISBN: "978-0062316097", Category: book.CategoryHistory, TotalCopies: 6},
	{Title: "Las venas abiertas de América Latina", Author: "Eduardo Galeano", ISBN: "978-8432311450", Category: book.CategoryHistory, TotalCopies: 2},
	{Title: "Cosmos", Author: "Carl Sagan", ISBN: "978-0345539434", Category: book.CategoryScience, TotalCopies: 3},
	{Title: "A Brief History of Time", Author: "Stephen Hawking", ISBN: "978-0553380163", Category: book.CategoryScience, TotalCopies: 4, AvailableCopies: intPtr(2)},
	{Title: "Thinking, Fast and Slow", Author: "Daniel Kahneman", ISBN: "978-0374533557", Category: book.CategoryNonFiction, TotalCopies: 3},
	{Title: "In Cold Blood", Author: "Truman Capote", ISBN: "978-0679745587", Category: book.CategoryNonFiction, TotalCopies: 1},
}

func main() {
	var (
		isbns  = flag.String("isbn", "", "Comma-separated ISBNs to import from Open Library instead of the sample catalogue")
		copies = flag.Int("copies", 1, "Copies to stock for each imported ISBN")
	)
	flag.Parse()

	config.LoadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Format: cfg.LogFormat, Level: logger.ParseLevel(cfg.LogLevel)})

	ctx := context.Background()
	repo, closeDB, err := store.Open(ctx, cfg.DB, log)
	if err != nil {
		log.Error("cannot open store", "error", err)
		os.Exit(1)
	}
	defer closeDB()

	drafts := sampleCatalog
	if *isbns != "" {
		client := openlibrary.NewClient("bookservice-seed/1.0", 1, 3)
		drafts, err = importDrafts(ctx, client, log, splitISBNs(*isbns), *copies)
		if err != nil {
			log.Error("open library lookup failed", "error", err)
			closeDB()
			os.Exit(1)
		}
	}

	created, skipped, err := seed(ctx, book.NewService(repo, log), log, drafts)
	if err != nil {
		log.Error("seed failed", "error", err)
		closeDB()
		os.Exit(1)
	}
	log.Info("seed complete", "created", created, "skipped", skipped)
}

// seed creates every draft whose ISBN is not catalogued yet.
func seed(ctx context.Context, service *book.Service, log *slog.Logger, drafts []book.Draft) (created, skipped int, err error) {
	for _, d := range drafts {
		_, err := service.Create(ctx, d)
		switch {
		case err == nil:
			created++
		case errors.Is(err, book.ErrDuplicateISBN):
			log.Debug("isbn already present", "isbn", d.ISBN)
			skipped++
		default:
			return created, skipped, fmt.Errorf("create %q: %w", d.Title, err)
		}
	}
	return created, skipped, nil
}

type editionLookup interface {
	EditionsByISBN(ctx context.Context, isbns []string) (map[string]openlibrary.Edition, error)
}

func splitISBNs(raw string) []string {
	var out []string
	for _, isbn := range strings.Split(raw, ",") {
		if isbn = strings.TrimSpace(isbn); isbn != "" {
			out = append(out, isbn)
		}
	}
	return out
}

// importDrafts turns Open Library editions into drafts. ISBNs the lookup does
// not know are logged and skipped.
func importDrafts(ctx context.Context, lookup editionLookup, log *slog.Logger, isbns []string, copies int) ([]book.Draft, error) {
	editions, err := lookup.EditionsByISBN(ctx, isbns)
	if err != nil {
		return nil, err
	}

	drafts := make([]book.Draft, 0, len(editions))
	for _, isbn := range isbns {
		edition, ok := editions[isbn]
		if !ok {
			log.Warn("isbn not found on open library", "isbn", isbn)
			continue
		}
		drafts = append(drafts, book.Draft{
			Title:       edition.Title,
			Author:      edition.AuthorNames(),
			ISBN:        isbn,
			Category:    categoryFor(edition.Subjects),
			TotalCopies: copies,
		})
	}
	return drafts, nil
}

// categoryFor picks the first catalogue category a subject hints at.
func categoryFor(subjects []openlibrary.Subject) book.Category {
	for _, s := range subjects {
		name := strings.ToLower(s.Name)
		switch {
		case strings.Contains(name, "fiction") && !strings.Contains(name, "nonfiction") && !strings.Contains(name, "non-fiction"):
			return book.CategoryFiction
		case strings.Contains(name, "novel"):
			return book.CategoryFiction
		case strings.Contains(name, "history"):
			return book.CategoryHistory
		case strings.Contains(name, "science"), strings.Contains(name, "physics"), strings.Contains(name, "astronomy"), strings.Contains(name, "biology"):
			return book.CategoryScience
		}
	}
	return book.CategoryNonFiction
}
