package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidQuery        = errors.New("invalid query")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnknownStrategy     = errors.New("unknown strategy")
	ErrMalformedItem       = errors.New("malformed catalog item")
	ErrNoResultsAvailable  = errors.New("no results available")
	ErrCatalogUnavailable  = errors.New("catalog unavailable")
	ErrRebuildInProgress   = errors.New("index rebuild already in progress")
	ErrMalformedExpression = errors.New("malformed boolean expression")
	ErrInternal            = errors.New("internal error")
)

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

// Validation builds a 400 AppError wrapping ErrInvalidQuery.
func Validation(format string, args ...any) *AppError {
	return Newf(ErrInvalidQuery, http.StatusBadRequest, format, args...)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidQuery), errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrUnknownStrategy), errors.Is(err, ErrMalformedExpression):
		return http.StatusBadRequest
	case errors.Is(err, ErrMalformedItem):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrRebuildInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrNoResultsAvailable), errors.Is(err, ErrCatalogUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsValidation reports whether err is a client mistake rather than a
// failure of the engine.
func IsValidation(err error) bool {
	return err != nil && HTTPStatusCode(err) == http.StatusBadRequest
}
