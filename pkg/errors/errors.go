// Package errors defines the sentinel errors shared across carsearch and
// their mapping onto HTTP responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyCorpus         = errors.New("index has no documents")
	ErrInvalidTopK         = errors.New("topk must be at least 1")
	ErrInvalidInput        = errors.New("invalid input")
	ErrIndexFrozen         = errors.New("index is frozen")
	ErrOutOfOrder          = errors.New("document id out of sequence")
	ErrCorruptSnapshot     = errors.New("corrupt index snapshot")
	ErrIndexNotReady       = errors.New("index not loaded")
	ErrIdempotencyConflict = errors.New("listing already ingested")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrInternal            = errors.New("internal error")
	ErrTimeout             = errors.New("operation timed out")
)

// statuses is checked in order; the first sentinel found in the chain wins.
// Sentinels missing here are server faults.
var statuses = []struct {
	err    error
	status int
}{
	{ErrInvalidTopK, http.StatusBadRequest},
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrIdempotencyConflict, http.StatusConflict},
	{ErrRateLimited, http.StatusTooManyRequests},
	{ErrEmptyCorpus, http.StatusServiceUnavailable},
	{ErrIndexNotReady, http.StatusServiceUnavailable},
	{ErrTimeout, http.StatusServiceUnavailable},
}

// AppError attaches an explicit status and a client-facing message to a
// sentinel.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

// HTTPStatusCode maps an error chain onto the status the HTTP layer reports.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// PublicMessage is the text safe to return to a client. Unclassified
// failures are reduced to "internal error" so storage and decode details
// stay in the logs.
func PublicMessage(err error) string {
	if HTTPStatusCode(err) != http.StatusInternalServerError {
		return err.Error()
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Error()
	}
	return ErrInternal.Error()
}
