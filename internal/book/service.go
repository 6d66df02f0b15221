package book

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bookservice/internal/validation"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "bookservice/internal/book"

// Service owns every business rule around catalogued books. It is the only
// writer of book state.
type Service struct {
	repo      Repository
	validator *validation.Validator
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewService creates a new book service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		validator: validation.New(),
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
}

// Create validates and stores a new book. A nil AvailableCopies defaults to
// TotalCopies.
func (s *Service) Create(ctx context.Context, d Draft) (Book, error) {
	ctx, span := s.tracer.Start(ctx, "book.Create")
	defer span.End()

	if err := s.validateDraft(d, false); err != nil {
		return Book{}, s.fail(ctx, span, "create", err)
	}

	b := fromDraft(d)
	if d.AvailableCopies == nil {
		b.AvailableCopies = b.TotalCopies
	}

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
		exists, err := tx.ExistsByISBN(ctx, b.ISBN)
		if err != nil {
			return fmt.Errorf("check isbn: %w", err)
		}
		if exists {
			return duplicateISBN(b.ISBN)
		}
		return tx.Insert(ctx, &b)
	})
	if err != nil {
		return Book{}, s.fail(ctx, span, "create", err)
	}

	span.SetAttributes(attribute.Int64("book.id", b.ID))
	s.logger.InfoContext(ctx, "book created", "id", b.ID, "isbn", b.ISBN, "title", b.Title)
	return b, nil
}

// GetByID returns the book with the given id.
func (s *Service) GetByID(ctx context.Context, id int64) (Book, error) {
	ctx, span := s.tracer.Start(ctx, "book.GetByID", trace.WithAttributes(attribute.Int64("book.id", id)))
	defer span.End()

	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Book{}, s.fail(ctx, span, "get", err)
	}
	return b, nil
}

// Update replaces every field of an existing book with the draft's values.
func (s *Service) Update(ctx context.Context, id int64, d Draft) (Book, error) {
	ctx, span := s.tracer.Start(ctx, "book.Update", trace.WithAttributes(attribute.Int64("book.id", id)))
	defer span.End()

	if err := s.validateDraft(d, true); err != nil {
		return Book{}, s.fail(ctx, span, "update", err)
	}

	var updated Book
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
		existing, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}

		next := fromDraft(d)
		if existing.ISBN != next.ISBN {
			taken, err := tx.ExistsByISBN(ctx, next.ISBN)
			if err != nil {
				return fmt.Errorf("check isbn: %w", err)
			}
			if taken {
				return duplicateISBN(next.ISBN)
			}
		}

		next.ID = existing.ID
		if err := tx.Update(ctx, &next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return Book{}, s.fail(ctx, span, "update", err)
	}

	s.logger.InfoContext(ctx, "book updated", "id", id)
	return updated, nil
}

// Delete removes a book.
func (s *Service) Delete(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "book.Delete", trace.WithAttributes(attribute.Int64("book.id", id)))
	defer span.End()

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.FindByID(ctx, id); err != nil {
			return err
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return s.fail(ctx, span, "delete", err)
	}

	s.logger.InfoContext(ctx, "book deleted", "id", id)
	return nil
}

// AdjustAvailability applies delta copies to a book's available count:
// negative for a checkout, positive for a return. The read, the check and the
// write happen in one transaction; a rejected adjustment writes nothing.
func (s *Service) AdjustAvailability(ctx context.Context, id int64, delta int) (Book, error) {
	ctx, span := s.tracer.Start(ctx, "book.AdjustAvailability", trace.WithAttributes(
		attribute.Int64("book.id", id),
		attribute.Int("book.delta", delta),
	))
	defer span.End()

	var adjusted Book
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
		b, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}

		next, err := Adjust(b.AvailableCopies, b.TotalCopies, delta)
		if err != nil {
			return err
		}
		if next == b.AvailableCopies {
			adjusted = b
			return nil
		}

		b.AvailableCopies = next
		if err := tx.Update(ctx, &b); err != nil {
			return err
		}
		adjusted = b
		return nil
	})
	if err != nil {
		adjustmentsTotal.WithLabelValues(adjustmentResult(err)).Inc()
		return Book{}, s.fail(ctx, span, "adjust availability", err)
	}

	adjustmentsTotal.WithLabelValues("ok").Inc()
	s.logger.InfoContext(ctx, "availability updated", "id", id, "delta", delta, "available", adjusted.AvailableCopies)
	return adjusted, nil
}

// IsAvailable reports whether the book has at least one copy on the shelf.
func (s *Service) IsAvailable(ctx context.Context, id int64) (bool, error) {
	b, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return b.IsAvailable(), nil
}

// ListAll returns every book.
func (s *Service) ListAll(ctx context.Context) ([]Book, error) {
	ctx, span := s.tracer.Start(ctx, "book.ListAll")
	defer span.End()

	books, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, s.fail(ctx, span, "list", err)
	}
	return books, nil
}

// FindByCategory returns the books of one category.
func (s *Service) FindByCategory(ctx context.Context, c Category) ([]Book, error) {
	ctx, span := s.tracer.Start(ctx, "book.FindByCategory", trace.WithAttributes(attribute.String("book.category", string(c))))
	defer span.End()

	if err := checkCategory(c); err != nil {
		return nil, s.fail(ctx, span, "find by category", err)
	}
	books, err := s.repo.FindByCategory(ctx, c)
	if err != nil {
		return nil, s.fail(ctx, span, "find by category", err)
	}
	return books, nil
}

// FindAvailable returns the books with at least one available copy.
func (s *Service) FindAvailable(ctx context.Context) ([]Book, error) {
	ctx, span := s.tracer.Start(ctx, "book.FindAvailable")
	defer span.End()

	books, err := s.repo.FindAvailable(ctx)
	if err != nil {
		return nil, s.fail(ctx, span, "find available", err)
	}
	return books, nil
}

// FindByAuthor returns the books whose author contains the given text, ignoring case.
func (s *Service) FindByAuthor(ctx context.Context, author string) ([]Book, error) {
	ctx, span := s.tracer.Start(ctx, "book.FindByAuthor")
	defer span.End()

	books, err := s.repo.FindByAuthorContains(ctx, author)
	if err != nil {
		return nil, s.fail(ctx, span, "find by author", err)
	}
	return books, nil
}

// FindByAuthorAndCategory narrows FindByAuthor to one category.
func (s *Service) FindByAuthorAndCategory(ctx context.Context, author string, c Category) ([]Book, error) {
	ctx, span := s.tracer.Start(ctx, "book.FindByAuthorAndCategory")
	defer span.End()

	if err := checkCategory(c); err != nil {
		return nil, s.fail(ctx, span, "find by author and category", err)
	}
	books, err := s.repo.FindByAuthorContainsAndCategory(ctx, author, c)
	if err != nil {
		return nil, s.fail(ctx, span, "find by author and category", err)
	}
	return books, nil
}

// FindByTitle returns the books whose title contains the given text, ignoring case.
func (s *Service) FindByTitle(ctx context.Context, title string) ([]Book, error) {
	ctx, span := s.tracer.Start(ctx, "book.FindByTitle")
	defer span.End()

	books, err := s.repo.FindByTitleContains(ctx, title)
	if err != nil {
		return nil, s.fail(ctx, span, "find by title", err)
	}
	return books, nil
}

// CountByCategory returns how many books are catalogued under c.
func (s *Service) CountByCategory(ctx context.Context, c Category) (int, error) {
	ctx, span := s.tracer.Start(ctx, "book.CountByCategory")
	defer span.End()

	if err := checkCategory(c); err != nil {
		return 0, s.fail(ctx, span, "count by category", err)
	}
	n, err := s.repo.CountByCategory(ctx, c)
	if err != nil {
		return 0, s.fail(ctx, span, "count by category", err)
	}
	return n, nil
}

// validateDraft checks field rules and the copy invariant. Text lengths are
// checked on the trimmed values that get stored. Update is a full replace, so
// it also requires availableCopies.
func (s *Service) validateDraft(d Draft, requireAvailable bool) error {
	fields := s.validator.Fields(d.trimmed())
	if fields == nil {
		fields = map[string]string{}
	}

	if _, bad := fields["availableCopies"]; !bad {
		switch {
		case d.AvailableCopies == nil && requireAvailable:
			fields["availableCopies"] = "availableCopies is required"
		case d.AvailableCopies != nil && *d.AvailableCopies > d.TotalCopies:
			if _, badTotal := fields["totalCopies"]; !badTotal {
				fields["availableCopies"] = "availableCopies must not exceed totalCopies"
			}
		}
	}

	if len(fields) > 0 {
		return validationFailed(fields)
	}
	return nil
}

func checkCategory(c Category) error {
	if _, ok := CategoryDisplayNames[c]; ok {
		return nil
	}
	return validationFailed(map[string]string{
		"category": "category must be one of [FICTION, NON_FICTION, SCIENCE, HISTORY]",
	})
}

func fromDraft(d Draft) Book {
	d = d.trimmed()
	b := Book{
		Title:       d.Title,
		Author:      d.Author,
		ISBN:        d.ISBN,
		Category:    d.Category,
		TotalCopies: d.TotalCopies,
	}
	if d.AvailableCopies != nil {
		b.AvailableCopies = *d.AvailableCopies
	}
	return b
}

// fail records err on the span and logs it: business rejections at warn,
// everything else at error.
func (s *Service) fail(ctx context.Context, span trace.Span, op string, err error) error {
	span.RecordError(err)

	var be *Error
	if errors.As(err, &be) {
		span.SetStatus(codes.Error, string(be.Kind))
		s.logger.WarnContext(ctx, "book operation rejected", "op", op, "kind", be.Kind, "reason", be.Message)
		return err
	}

	span.SetStatus(codes.Error, err.Error())
	s.logger.ErrorContext(ctx, "book operation failed", "op", op, "error", err)
	return err
}
