package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Veraticus/matflow/internal/model"
)

// HierarchyClient reads and extends the universe/category/product tree.
type HierarchyClient interface {
	ListUniverses(ctx context.Context) ([]model.Universe, error)
	ListCategories(ctx context.Context, universeID int) ([]model.Category, error)
	ListProducts(ctx context.Context, universeID int, categoryID *int) ([]model.Product, error)
	CreateCategory(ctx context.Context, name string, universeID int) (model.Category, error)
	CreateProduct(ctx context.Context, name string, universeID int, categoryID *int) (model.Product, error)
}

type productKey struct {
	universeID int
	categoryID int // -1 for "all products of the universe"
}

func keyFor(universeID int, categoryID *int) productKey {
	if categoryID == nil {
		return productKey{universeID: universeID, categoryID: -1}
	}
	return productKey{universeID: universeID, categoryID: *categoryID}
}

// Hierarchy caches hierarchy lists fetched from the backend. Lists are
// loaded lazily and kept until invalidated.
type Hierarchy struct {
	client     HierarchyClient
	categories map[int][]model.Category
	products   map[productKey][]model.Product
	universes  []model.Universe
	mu         sync.RWMutex
	loaded     bool
}

// NewHierarchy creates an empty cache over client.
func NewHierarchy(client HierarchyClient) *Hierarchy {
	return &Hierarchy{
		client:     client,
		categories: make(map[int][]model.Category),
		products:   make(map[productKey][]model.Product),
	}
}

// Universes returns all universes, fetching them on first use.
func (h *Hierarchy) Universes(ctx context.Context) ([]model.Universe, error) {
	h.mu.RLock()
	if h.loaded {
		out := append([]model.Universe(nil), h.universes...)
		h.mu.RUnlock()
		return out, nil
	}
	h.mu.RUnlock()

	universes, err := h.client.ListUniverses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load universes: %w", err)
	}

	h.mu.Lock()
	h.universes = universes
	h.loaded = true
	h.mu.Unlock()

	return append([]model.Universe(nil), universes...), nil
}

// Categories returns the categories of a universe.
func (h *Hierarchy) Categories(ctx context.Context, universeID int) ([]model.Category, error) {
	h.mu.RLock()
	cached, ok := h.categories[universeID]
	h.mu.RUnlock()
	if ok {
		return append([]model.Category(nil), cached...), nil
	}
	return h.RefreshCategories(ctx, universeID)
}

// RefreshCategories refetches the categories of a universe.
func (h *Hierarchy) RefreshCategories(ctx context.Context, universeID int) ([]model.Category, error) {
	categories, err := h.client.ListCategories(ctx, universeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories for universe %d: %w", universeID, err)
	}

	h.mu.Lock()
	h.categories[universeID] = categories
	h.mu.Unlock()

	return append([]model.Category(nil), categories...), nil
}

// Products returns the products of a universe, optionally narrowed to a
// category.
func (h *Hierarchy) Products(ctx context.Context, universeID int, categoryID *int) ([]model.Product, error) {
	h.mu.RLock()
	cached, ok := h.products[keyFor(universeID, categoryID)]
	h.mu.RUnlock()
	if ok {
		return append([]model.Product(nil), cached...), nil
	}
	return h.RefreshProducts(ctx, universeID, categoryID)
}

// RefreshProducts refetches a product list.
func (h *Hierarchy) RefreshProducts(ctx context.Context, universeID int, categoryID *int) ([]model.Product, error) {
	products, err := h.client.ListProducts(ctx, universeID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load products for universe %d: %w", universeID, err)
	}

	h.mu.Lock()
	h.products[keyFor(universeID, categoryID)] = products
	h.mu.Unlock()

	return append([]model.Product(nil), products...), nil
}

// CreateCategory creates a category on the backend, inserts it into the
// cached list right away, then reconciles the list with a refetch. A
// failed refetch keeps the optimistic entry.
func (h *Hierarchy) CreateCategory(ctx context.Context, name string, universeID int) (model.Category, error) {
	category, err := h.client.CreateCategory(ctx, name, universeID)
	if err != nil {
		return model.Category{}, fmt.Errorf("failed to create category %q: %w", name, err)
	}

	h.mu.Lock()
	if list, ok := h.categories[universeID]; ok {
		h.categories[universeID] = appendCategory(list, category)
	}
	h.mu.Unlock()

	if _, err := h.RefreshCategories(ctx, universeID); err != nil {
		slog.Warn("Category refetch failed, keeping local entry", "category", category.Name, "error", err)
	}
	return category, nil
}

// CreateProduct creates a product the same way CreateCategory does.
func (h *Hierarchy) CreateProduct(ctx context.Context, name string, universeID int, categoryID *int) (model.Product, error) {
	product, err := h.client.CreateProduct(ctx, name, universeID, categoryID)
	if err != nil {
		return model.Product{}, fmt.Errorf("failed to create product %q: %w", name, err)
	}

	h.mu.Lock()
	for _, key := range []productKey{keyFor(universeID, nil), keyFor(universeID, categoryID)} {
		if list, ok := h.products[key]; ok {
			h.products[key] = appendProduct(list, product)
		}
	}
	h.mu.Unlock()

	if _, err := h.RefreshProducts(ctx, universeID, categoryID); err != nil {
		slog.Warn("Product refetch failed, keeping local entry", "product", product.Name, "error", err)
	}
	return product, nil
}

// Invalidate drops every cached list.
func (h *Hierarchy) Invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.universes = nil
	h.loaded = false
	h.categories = make(map[int][]model.Category)
	h.products = make(map[productKey][]model.Product)
}

// Universe looks up a cached universe.
func (h *Hierarchy) Universe(id int) (model.Universe, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, u := range h.universes {
		if u.ID == id {
			return u, true
		}
	}
	return model.Universe{}, false
}

// Category looks up a cached category in any universe.
func (h *Hierarchy) Category(id int) (model.Category, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, list := range h.categories {
		for _, c := range list {
			if c.ID == id {
				return c, true
			}
		}
	}
	return model.Category{}, false
}

// Product looks up a cached product in any list.
func (h *Hierarchy) Product(id int) (model.Product, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, list := range h.products {
		for _, p := range list {
			if p.ID == id {
				return p, true
			}
		}
	}
	return model.Product{}, false
}

// CategoryFits reports whether categoryID belongs to universeID. A
// category absent from the cache fits unless the universe's list is
// loaded and lacks it.
func (h *Hierarchy) CategoryFits(universeID, categoryID *int) bool {
	if categoryID == nil {
		return true
	}
	if universeID == nil {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, list := range h.categories {
		for _, c := range list {
			if c.ID == *categoryID {
				return c.UniverseID == *universeID
			}
		}
	}
	_, loaded := h.categories[*universeID]
	return !loaded
}

// ProductFits reports whether productID belongs to universeID and, when
// categoryID is set, to that category. Unknown products are judged the
// same way as in CategoryFits.
func (h *Hierarchy) ProductFits(universeID, categoryID, productID *int) bool {
	if productID == nil {
		return true
	}
	if universeID == nil {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, list := range h.products {
		for _, p := range list {
			if p.ID != *productID {
				continue
			}
			if p.UniverseID != *universeID {
				return false
			}
			return categoryID == nil || (p.CategoryID != nil && *p.CategoryID == *categoryID)
		}
	}
	if _, loaded := h.products[keyFor(*universeID, nil)]; loaded {
		return false
	}
	if categoryID != nil {
		if _, loaded := h.products[keyFor(*universeID, categoryID)]; loaded {
			return false
		}
	}
	return true
}

// Consistent reports whether the category of s belongs to its universe and
// its product to that category.
func (h *Hierarchy) Consistent(s model.FileSuggestion) bool {
	return h.CategoryFits(s.UniverseID, s.CategoryID) &&
		h.ProductFits(s.UniverseID, s.CategoryID, s.ProductID)
}

// FillNames sets missing display names on s from cached lists.
func (h *Hierarchy) FillNames(s *model.FileSuggestion) {
	if s.UniverseID != nil && s.UniverseName == "" {
		if u, ok := h.Universe(*s.UniverseID); ok {
			s.UniverseName = u.Name
		}
	}
	if s.CategoryID != nil && s.CategoryName == "" {
		if c, ok := h.Category(*s.CategoryID); ok {
			s.CategoryName = c.Name
		}
	}
	if s.ProductID != nil && s.ProductName == "" {
		if p, ok := h.Product(*s.ProductID); ok {
			s.ProductName = p.Name
		}
	}
}

// Warm loads the lists needed to name the hierarchy entries referenced by
// suggestions. Failures are logged and skipped.
func (h *Hierarchy) Warm(ctx context.Context, suggestions []model.FileSuggestion) {
	if _, err := h.Universes(ctx); err != nil {
		slog.Warn("Could not load universes", "error", err)
		return
	}
	seen := make(map[int]bool)
	for _, s := range suggestions {
		if s.UniverseID == nil || seen[*s.UniverseID] {
			continue
		}
		seen[*s.UniverseID] = true
		if _, err := h.Categories(ctx, *s.UniverseID); err != nil {
			slog.Warn("Could not load categories", "universe_id", *s.UniverseID, "error", err)
		}
		if _, err := h.Products(ctx, *s.UniverseID, nil); err != nil {
			slog.Warn("Could not load products", "universe_id", *s.UniverseID, "error", err)
		}
	}
}

func appendCategory(list []model.Category, c model.Category) []model.Category {
	for _, existing := range list {
		if existing.ID == c.ID {
			return list
		}
	}
	return append(list, c)
}

func appendProduct(list []model.Product, p model.Product) []model.Product {
	for _, existing := range list {
		if existing.ID == p.ID {
			return list
		}
	}
	return append(list, p)
}
