package model

import "time"

// Material is a document stored by the backend.
type Material struct {
	CreatedAt    time.Time    `json:"created_at"`
	ProductID    *int         `json:"product_id,omitempty"`
	Name         string       `json:"name"`
	MaterialType MaterialType `json:"material_type,omitempty"`
	Audience     Audience     `json:"audience,omitempty"`
	Status       string       `json:"status,omitempty"`
	ID           int          `json:"id"`
}

// MaterialSnapshot identifies the material that an upload would overwrite.
type MaterialSnapshot struct {
	CreatedAt time.Time `json:"created_at"`
	Name      string    `json:"name"`
	ID        int       `json:"id"`
}

// DuplicateConflict is an open "material already exists" decision.
// PendingPayload is retained so a confirmation can re-issue it unchanged
// with the replace flag set.
type DuplicateConflict struct {
	PendingPayload   *UploadRequest
	ExistingMaterial MaterialSnapshot
}
