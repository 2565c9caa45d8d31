// Package duplicate runs the pre-flight "does this material already
// exist" check before an upload.
package duplicate

import (
	"context"
	"log/slog"

	"github.com/Veraticus/matflow/internal/api"
	"github.com/Veraticus/matflow/internal/model"
)

// Checker queries the backend for an existing material.
type Checker interface {
	CheckDuplicate(ctx context.Context, productName string, materialType model.MaterialType) (api.DuplicateCheck, error)
}

// Result is the outcome of a pre-flight check.
type Result struct {
	Material *model.MaterialSnapshot
	Exists   bool
	// Unchecked is set when the check could not be performed and the
	// upload proceeds anyway.
	Unchecked bool
}

// Conflict returns the conflict record for payload when the check found a
// material.
func (r Result) Conflict(payload model.UploadRequest) (model.DuplicateConflict, bool) {
	if !r.Exists || r.Material == nil {
		return model.DuplicateConflict{}, false
	}
	return model.DuplicateConflict{
		ExistingMaterial: *r.Material,
		PendingPayload:   &payload,
	}, true
}

// Resolver performs fail-open duplicate checks.
type Resolver struct {
	checker Checker
}

// NewResolver creates a resolver.
func NewResolver(checker Checker) *Resolver {
	return &Resolver{checker: checker}
}

// Check asks whether a material already exists for the product and type.
// Any failure other than cancellation is logged and reported as "no
// duplicate" so the upload can go ahead; the upload's own 409 still
// catches real conflicts.
func (r *Resolver) Check(ctx context.Context, productName string, materialType model.MaterialType) (Result, error) {
	if productName == "" {
		return Result{Unchecked: true}, nil
	}

	check, err := r.checker.CheckDuplicate(ctx, productName, materialType)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		slog.Warn("Duplicate check failed, continuing with upload",
			"product", productName,
			"material_type", materialType,
			"error", err)
		return Result{Unchecked: true}, nil
	}

	if check.Exists && check.Material == nil {
		// Exists without details still blocks the upload.
		check.Material = &model.MaterialSnapshot{}
	}
	return Result{Exists: check.Exists, Material: check.Material}, nil
}
