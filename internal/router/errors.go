package router

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentUnreadable is returned before any backend call when the
	// document cannot be parsed.
	ErrDocumentUnreadable = errors.New("document unreadable")

	// ErrExtractionUnavailable is matched by ExtractionUnavailableError.
	ErrExtractionUnavailable = errors.New("extraction unavailable")

	// ErrExtractionTimeout is returned when a backend exceeds its time budget.
	ErrExtractionTimeout = errors.New("extraction timed out")
)

// ExtractionUnavailableError reports that both backends failed. It carries
// both underlying errors.
type ExtractionUnavailableError struct {
	Primary  error
	Fallback error
}

// Error implements the error interface.
func (e *ExtractionUnavailableError) Error() string {
	return fmt.Sprintf("extraction unavailable: primary: %v; fallback: %v", e.Primary, e.Fallback)
}

// Unwrap exposes both backend errors to errors.Is and errors.As.
func (e *ExtractionUnavailableError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}

// Is matches ErrExtractionUnavailable.
func (e *ExtractionUnavailableError) Is(target error) bool {
	return target == ErrExtractionUnavailable
}

// UnreadableError describes why a document was rejected.
type UnreadableError struct {
	Reason string
}

// Error implements the error interface.
func (e *UnreadableError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDocumentUnreadable, e.Reason)
}

// Is matches ErrDocumentUnreadable.
func (e *UnreadableError) Is(target error) bool {
	return target == ErrDocumentUnreadable
}
