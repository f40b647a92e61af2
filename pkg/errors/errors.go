// Package errors defines the sentinel errors shared across the indexing and
// query paths, plus an AppError wrapper that carries an HTTP status for the
// search service.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAlreadyIndexed is returned when a build is attempted over a
	// non-empty lexicon. The existing index is left untouched.
	ErrAlreadyIndexed = errors.New("index already exists at this location")

	// ErrTermNotFound is returned by lexicon lookups for a term that was
	// never indexed.
	ErrTermNotFound = errors.New("term not found in lexicon")

	// ErrDocNotFound is returned by document-metadata lookups for an
	// unknown DocID.
	ErrDocNotFound = errors.New("document not found")

	// ErrStorageIO wraps any read or write failure against the lexicon,
	// postings, or mapping files.
	ErrStorageIO = errors.New("index storage failure")

	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrTimeout      = errors.New("operation timed out")
)

// StorageIO wraps err under ErrStorageIO with an operation description so
// callers can match on the kind while keeping the cause in the chain.
func StorageIO(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageIO, op, err)
}

// AppError attaches a caller-facing message and HTTP status to a sentinel.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error to the status code the search service should
// respond with.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrTermNotFound), errors.Is(err, ErrDocNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyIndexed):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
