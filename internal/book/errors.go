package book

import (
	"errors"
	"fmt"
)

// Kind classifies a business failure. The transport layer maps kinds to status codes.
type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindDuplicateISBN      Kind = "DUPLICATE_ISBN"
	KindInsufficientCopies Kind = "INSUFFICIENT_COPIES"
	KindInvalidAdjustment  Kind = "INVALID_ADJUSTMENT"
	KindValidation         Kind = "VALIDATION_FAILURE"
)

// Error is a business error returned by the service and the availability engine.
// Any error that is not an *Error is unexpected.
type Error struct {
	Kind    Kind
	Message string

	// Fields maps a json field name to its validation message (KindValidation only).
	Fields map[string]string

	// Available and Requested describe a rejected checkout (KindInsufficientCopies only).
	Available int
	Requested int
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// for every not-found error regardless of its message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

var (
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "book not found"}
	ErrDuplicateISBN      = &Error{Kind: KindDuplicateISBN, Message: "duplicate isbn"}
	ErrInsufficientCopies = &Error{Kind: KindInsufficientCopies, Message: "insufficient copies"}
	ErrInvalidAdjustment  = &Error{Kind: KindInvalidAdjustment, Message: "invalid adjustment"}
	ErrValidation         = &Error{Kind: KindValidation, Message: "validation failed"}
)

// KindOf returns the kind of err, or "" when err is not a business error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func notFound(id int64) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("book not found with id: %d", id)}
}

func duplicateISBN(isbn string) *Error {
	return &Error{Kind: KindDuplicateISBN, Message: fmt.Sprintf("a book with isbn %s already exists", isbn)}
}

func insufficientCopies(available, requested int) *Error {
	return &Error{
		Kind:      KindInsufficientCopies,
		Message:   fmt.Sprintf("insufficient copies available: available=%d, requested=%d", available, requested),
		Available: available,
		Requested: requested,
	}
}

func invalidAdjustment(total int) *Error {
	return &Error{
		Kind:    KindInvalidAdjustment,
		Message: fmt.Sprintf("available copies cannot exceed total copies (%d)", total),
	}
}

func validationFailed(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}
