package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bookservice/internal/book"
	"bookservice/internal/platform/openlibrary"
	"bookservice/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeed_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo, err := book.OpenSQLite(ctx, filepath.Join(t.TempDir(), "books.db"), 3*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	log := testutil.DiscardLogger()
	service := book.NewService(repo, log)

	created, skipped, err := seed(ctx, service, log, sampleCatalog)
	require.NoError(t, err)
	assert.Equal(t, len(sampleCatalog), created)
	assert.Zero(t, skipped)

	created, skipped, err = seed(ctx, service, log, sampleCatalog)
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Equal(t, len(sampleCatalog), skipped)

	marquez, err := service.FindByAuthor(ctx, "garcía márquez")
	require.NoError(t, err)
	assert.Len(t, marquez, 2)
}

func TestSeed_StopsOnInvalidDraft(t *testing.T) {
	ctx := context.Background()
	repo, err := book.OpenSQLite(ctx, filepath.Join(t.TempDir(), "books.db"), 3*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	log := testutil.DiscardLogger()
	_, _, err = seed(ctx, book.NewService(repo, log), log, []book.Draft{{Title: "No author"}})

	assert.ErrorIs(t, err, book.ErrValidation)
}

type fakeLookup map[string]openlibrary.Edition

func (f fakeLookup) EditionsByISBN(_ context.Context, isbns []string) (map[string]openlibrary.Edition, error) {
	out := map[string]openlibrary.Edition{}
	for _, isbn := range isbns {
		if e, ok := f[isbn]; ok {
			out[isbn] = e
		}
	}
	return out, nil
}

func TestImportDrafts(t *testing.T) {
	lookup := fakeLookup{
		"978-0345539434": {
			Title:    "Cosmos",
			Authors:  []openlibrary.Author{{Name: "Carl Sagan"}},
			Subjects: []openlibrary.Subject{{Name: "Astronomy"}},
		},
		"978-0679745587": {
			Title:    "In Cold Blood",
			Authors:  []openlibrary.Author{{Name: "Truman Capote"}},
			Subjects: []openlibrary.Subject{{Name: "True crime"}},
		},
	}

	drafts, err := importDrafts(context.Background(), lookup, testutil.DiscardLogger(),
		splitISBNs(" 978-0345539434, missing ,978-0679745587,"), 2)
	require.NoError(t, err)

	assert.Equal(t, []book.Draft{
		{Title: "Cosmos", Author: "Carl Sagan", ISBN: "978-0345539434", Category: book.CategoryScience, TotalCopies: 2},
		{Title: "In Cold Blood", Author: "Truman Capote", ISBN: "978-0679745587", Category: book.CategoryNonFiction, TotalCopies: 2},
	}, drafts)
}

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		subjects []string
		want     book.Category
	}{
		{[]string{"Fiction", "Colombia"}, book.CategoryFiction},
		{[]string{"Nonfiction", "Psychology"}, book.CategoryNonFiction},
		{[]string{"World history"}, book.CategoryHistory},
		{[]string{"Physics", "Cosmology"}, book.CategoryScience},
		{nil, book.CategoryNonFiction},
	}

	for _, tt := range tests {
		subjects := make([]openlibrary.Subject, 0, len(tt.subjects))
		for _, s := range tt.subjects {
			subjects = append(subjects, openlibrary.Subject{Name: s})
		}
		assert.Equal(t, tt.want, categoryFor(subjects), tt.subjects)
	}
}
