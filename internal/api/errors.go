package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Veraticus/matflow/internal/common"
	"github.com/Veraticus/matflow/internal/model"
)

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Operation  string
	Status     string
	Body       string
	StatusCode int
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s failed: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("%s failed: %s: %s", e.Operation, e.Status, body)
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// Unwrap maps well-known status codes onto the common sentinels so callers
// can use errors.Is without inspecting codes.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return common.ErrUnauthorized
	case e.StatusCode == http.StatusRequestEntityTooLarge:
		return common.ErrPayloadTooLarge
	case e.StatusCode == http.StatusTooManyRequests:
		return common.ErrRateLimit
	case e.StatusCode >= 500:
		return common.ErrBackendDown
	default:
		return nil
	}
}

// ConflictError is returned by Upload when the backend answers 409 because
// an active material already occupies the product/material-type slot.
type ConflictError struct {
	Payload  *model.UploadRequest
	Existing model.MaterialSnapshot
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("material already exists: %q (id %d)", e.Existing.Name, e.Existing.ID)
}

// Conflict converts the error into the domain conflict record.
func (e *ConflictError) Conflict() model.DuplicateConflict {
	return model.DuplicateConflict{
		ExistingMaterial: e.Existing,
		PendingPayload:   e.Payload,
	}
}
