// Package reconcile holds the per-file suggestions of a batch while they
// are reviewed and edited against the universe → category → product
// hierarchy.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Veraticus/matflow/internal/common"
	"github.com/Veraticus/matflow/internal/model"
)

var (
	// ErrIndexOutOfRange is returned for row indexes outside the batch.
	ErrIndexOutOfRange = errors.New("suggestion index out of range")
	// ErrHierarchyMismatch is returned when a category is outside the
	// selected universe or a product outside the selected category.
	ErrHierarchyMismatch = errors.New("hierarchy entry does not belong to its parent")
)

// IsReady reports whether s can be uploaded at threshold. Manual rows
// (confidence 0) bypass the threshold; every row needs its required fields.
func IsReady(s model.FileSuggestion, threshold float64) bool {
	if !s.HasRequiredFields() {
		return false
	}
	return s.IsManual() || s.Confidence >= threshold
}

// Threshold is the auto-apply threshold of a batch. It can change while
// the batch is reviewed.
type Threshold interface {
	Threshold() float64
	SetThreshold(t float64) error
}

// ValidateThreshold rejects thresholds outside [0,1].
func ValidateThreshold(t float64) error {
	if t < 0 || t > 1 {
		return fmt.Errorf("%w: threshold %v outside [0,1]", common.ErrInvalidConfig, t)
	}
	return nil
}

// ThresholdValue is a Threshold held in memory.
type ThresholdValue struct {
	value float64
	mu    sync.Mutex
}

// NewThresholdValue creates a ThresholdValue starting at t.
func NewThresholdValue(t float64) *ThresholdValue {
	return &ThresholdValue{value: t}
}

// Threshold returns the current value.
func (v *ThresholdValue) Threshold() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

// SetThreshold changes the value.
func (v *ThresholdValue) SetThreshold(t float64) error {
	if err := ValidateThreshold(t); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = t
	return nil
}

// Store is the ordered list of suggestions for a batch, aligned
// index-for-index with the selected files.
type Store struct {
	hierarchy *Hierarchy
	rows      []model.FileSuggestion
	mu        sync.RWMutex
}

// NewStore creates an empty store. hierarchy may be nil, in which case
// names are never filled in.
func NewStore(hierarchy *Hierarchy) *Store {
	return &Store{hierarchy: hierarchy}
}

// Load replaces the rows. A category outside its universe is cleared
// together with the product; a product outside its category is cleared
// on its own.
func (s *Store) Load(suggestions []model.FileSuggestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append([]model.FileSuggestion(nil), suggestions...)
	if s.hierarchy != nil {
		for i := range s.rows {
			s.prune(&s.rows[i])
			s.hierarchy.FillNames(&s.rows[i])
		}
	}
}

func (s *Store) prune(row *model.FileSuggestion) {
	switch {
	case !s.hierarchy.CategoryFits(row.UniverseID, row.CategoryID):
		slog.Warn("Dropping category outside its universe", "file", row.Filename, "category_id", *row.CategoryID)
		clearCategory(row)
	case !s.hierarchy.ProductFits(row.UniverseID, row.CategoryID, row.ProductID):
		slog.Warn("Dropping product outside its category", "file", row.Filename, "product_id", *row.ProductID)
		clearProduct(row)
	}
}

func clearCategory(row *model.FileSuggestion) {
	row.CategoryID = nil
	row.CategoryName = ""
	clearProduct(row)
}

func clearProduct(row *model.FileSuggestion) {
	row.ProductID = nil
	row.ProductName = ""
}

// Suggestions returns a copy of the rows.
func (s *Store) Suggestions() []model.FileSuggestion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.FileSuggestion(nil), s.rows...)
}

// Len returns the number of rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Get returns row i.
func (s *Store) Get(i int) (model.FileSuggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.rows) {
		return model.FileSuggestion{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return s.rows[i], nil
}

// BeginEdit opens row i for editing. The returned Edit works on a copy;
// nothing changes in the store until SaveEdit.
func (s *Store) BeginEdit(i int) (*Edit, error) {
	row, err := s.Get(i)
	if err != nil {
		return nil, err
	}
	return &Edit{store: s, index: i, draft: row}, nil
}

// SaveEdit writes an edited row back. Missing names are filled from the
// loaded hierarchy and the row is marked human-approved.
func (s *Store) SaveEdit(i int, edited model.FileSuggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.rows) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}

	edited.Filename = s.rows[i].Filename
	if s.hierarchy != nil {
		s.prune(&edited)
		s.hierarchy.FillNames(&edited)
	}
	if edited.MaterialType != model.MaterialOther {
		edited.OtherTypeDescription = ""
	}
	edited.Confidence = model.ReviewedConfidence
	s.rows[i] = edited
	return nil
}

// Remove drops row i; the caller drops the matching file.
func (s *Store) Remove(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.rows) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	s.rows = append(s.rows[:i], s.rows[i+1:]...)
	return nil
}

// Reset clears every row.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = nil
}

// ReadyCount returns how many rows are ready at threshold.
func (s *Store) ReadyCount(threshold float64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, row := range s.rows {
		if IsReady(row, threshold) {
			n++
		}
	}
	return n
}

// Edit is an in-progress edit of one row.
type Edit struct {
	store *Store
	draft model.FileSuggestion
	index int
}

// Index returns the row being edited.
func (e *Edit) Index() int {
	return e.index
}

// Suggestion returns the current draft.
func (e *Edit) Suggestion() model.FileSuggestion {
	return e.draft
}

// SetUniverse selects a universe. The category and product always reset,
// even when the same universe is selected again.
func (e *Edit) SetUniverse(id int) {
	e.draft.UniverseID = model.IntPtr(id)
	e.draft.UniverseName = ""
	if e.store.hierarchy != nil {
		if u, ok := e.store.hierarchy.Universe(id); ok {
			e.draft.UniverseName = u.Name
		}
	}
	clearCategory(&e.draft)
}

// SetCategory selects a category and resets the product. A category
// known to belong to another universe is rejected.
func (e *Edit) SetCategory(id int) error {
	if e.store.hierarchy != nil && !e.store.hierarchy.CategoryFits(e.draft.UniverseID, &id) {
		return fmt.Errorf("%w: category %d", ErrHierarchyMismatch, id)
	}
	e.draft.CategoryID = model.IntPtr(id)
	e.draft.CategoryName = ""
	if e.store.hierarchy != nil {
		if c, ok := e.store.hierarchy.Category(id); ok {
			e.draft.CategoryName = c.Name
		}
	}
	clearProduct(&e.draft)
	return nil
}

// SetProduct selects a product. A product known to sit outside the
// draft's universe or category is rejected.
func (e *Edit) SetProduct(id int) error {
	if e.store.hierarchy != nil && !e.store.hierarchy.ProductFits(e.draft.UniverseID, e.draft.CategoryID, &id) {
		return fmt.Errorf("%w: product %d", ErrHierarchyMismatch, id)
	}
	e.draft.ProductID = model.IntPtr(id)
	e.draft.ProductName = ""
	if e.store.hierarchy != nil {
		if p, ok := e.store.hierarchy.Product(id); ok {
			e.draft.ProductName = p.Name
		}
	}
	return nil
}

// SetMaterialType sets the material type. description is kept only for
// "other".
func (e *Edit) SetMaterialType(t model.MaterialType, description string) {
	e.draft.MaterialType = t
	if t == model.MaterialOther {
		e.draft.OtherTypeDescription = description
	} else {
		e.draft.OtherTypeDescription = ""
	}
}

// SetAudience sets the audience.
func (e *Edit) SetAudience(a model.Audience) {
	e.draft.Audience = a
}

// CreateCategory creates a category in the draft's universe and selects it.
func (e *Edit) CreateCategory(ctx context.Context, name string) (model.Category, error) {
	if e.store.hierarchy == nil {
		return model.Category{}, errors.New("no hierarchy available")
	}
	if e.draft.UniverseID == nil {
		return model.Category{}, errors.New("select a universe before creating a category")
	}

	category, err := e.store.hierarchy.CreateCategory(ctx, name, *e.draft.UniverseID)
	if err != nil {
		return model.Category{}, err
	}

	e.draft.CategoryID = model.IntPtr(category.ID)
	e.draft.CategoryName = category.Name
	clearProduct(&e.draft)
	return category, nil
}

// CreateProduct creates a product under the draft's universe and category
// and selects it.
func (e *Edit) CreateProduct(ctx context.Context, name string) (model.Product, error) {
	if e.store.hierarchy == nil {
		return model.Product{}, errors.New("no hierarchy available")
	}
	if e.draft.UniverseID == nil {
		return model.Product{}, errors.New("select a universe before creating a product")
	}

	product, err := e.store.hierarchy.CreateProduct(ctx, name, *e.draft.UniverseID, e.draft.CategoryID)
	if err != nil {
		return model.Product{}, err
	}

	e.draft.ProductID = model.IntPtr(product.ID)
	e.draft.ProductName = product.Name
	return product, nil
}

// Save commits the draft to the store.
func (e *Edit) Save() error {
	return e.store.SaveEdit(e.index, e.draft)
}
