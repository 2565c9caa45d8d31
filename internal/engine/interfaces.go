package engine

import (
	"context"

	"github.com/Veraticus/matflow/internal/classifier"
	"github.com/Veraticus/matflow/internal/model"
	"github.com/Veraticus/matflow/internal/reconcile"
	"github.com/Veraticus/matflow/internal/upload"
)

// Classifier defines the contract for AI classification of a batch.
type Classifier interface {
	Classify(ctx context.Context, files []model.File, onProgress classifier.ProgressFunc) ([]model.FileSuggestion, error)
}

// Runner defines the contract for uploading a reviewed batch.
type Runner interface {
	Run(ctx context.Context, files []model.File, suggestions []model.FileSuggestion, threshold float64) (model.BatchResult, error)
	Tracker() *upload.Tracker
}

// Reviewer defines the contract for operator review of suggestions before
// upload. It edits rows through the store and may adjust the threshold.
type Reviewer interface {
	Review(ctx context.Context, files []model.File, store *reconcile.Store, hierarchy *reconcile.Hierarchy, threshold reconcile.Threshold) error
}
