// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Local storage errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Backend errors.
	ErrUnauthorized    = errors.New("backend rejected credentials")
	ErrBackendDown     = errors.New("backend unavailable")
	ErrPayloadTooLarge = errors.New("payload too large")

	// Ingestion errors.
	ErrNoFiles        = errors.New("no files selected")
	ErrMisaligned     = errors.New("files and suggestions are misaligned")
	ErrNoSuggestions  = errors.New("classification produced no suggestions")
	ErrMissingFields  = errors.New("missing required fields")
	ErrBelowThreshold = errors.New("confidence below auto-apply threshold")
	ErrSessionClosed  = errors.New("ingestion session closed")
	ErrNoToken        = errors.New("no bearer token configured")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrBackendDown) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
