// Package storage provides the local persistence layer for matflow: the
// saved login token and the upload journal.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/matflow/internal/model"
)

// Validation errors.
var (
	ErrNilContext          = errors.New("context cannot be nil")
	ErrEmptyString         = errors.New("string parameter cannot be empty")
	ErrInvalidJournalEntry = errors.New("invalid journal entry")
	ErrBatchNotFound       = errors.New("batch not found")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateJournalEntry validates an upload outcome before it is stored.
func validateJournalEntry(entry model.JournalEntry) error {
	if entry.Filename == "" {
		return fmt.Errorf("%w: missing filename", ErrInvalidJournalEntry)
	}
	switch entry.Status {
	case model.JournalUploaded, model.JournalReplaced, model.JournalSkipped, model.JournalFailed:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidJournalEntry, entry.Status)
	}
	return nil
}
