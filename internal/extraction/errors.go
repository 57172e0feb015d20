package extraction

import (
	"errors"
	"fmt"
)

// Common extraction errors
var (
	// ErrInvalidPDF is returned when the provided data is not a valid PDF document.
	ErrInvalidPDF = errors.New("invalid or corrupted PDF document")

	// ErrDocumentTooLarge is returned when the PDF exceeds the synchronous processing limit (20MB).
	ErrDocumentTooLarge = errors.New("document exceeds maximum size limit")

	// ErrBackendFailed is returned when the remote extraction service fails to process the document.
	ErrBackendFailed = errors.New("extraction backend failed")

	// ErrMissingCredentials is returned when neither GOOGLE_APPLICATION_CREDENTIALS
	// nor GOOGLE_CREDENTIALS environment variables are configured.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	// ErrInvalidConfiguration is returned when a backend is missing required settings.
	ErrInvalidConfiguration = errors.New("invalid extraction backend configuration")

	// ErrQuotaExceeded is returned when the remote API quota is exhausted.
	ErrQuotaExceeded = errors.New("extraction API quota exceeded")

	// ErrEmptyDocument is returned when the document contains no readable content.
	ErrEmptyDocument = errors.New("document contains no readable content")

	// ErrMalformedResponse is returned when a generative backend returns output that cannot be parsed.
	ErrMalformedResponse = errors.New("malformed extraction response")
)

// ExtractionError wraps errors with additional context about a backend failure.
type ExtractionError struct {
	// Backend is the backend that failed (e.g. "structured").
	Backend string

	// Op is the operation that failed (e.g. "Extract", "Recognize").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("extraction[%s]: %s failed: %s: %v", e.Backend, e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("extraction[%s]: %s failed: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *ExtractionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapExtractionError wraps an error as an ExtractionError if it isn't already one.
func WrapExtractionError(backend, op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return err
	}

	return &ExtractionError{
		Backend: backend,
		Op:      op,
		Err:     err,
		Details: details,
	}
}
