package api

import (
	"context"
	"net/url"
	"strconv"

	"github.com/Veraticus/matflow/internal/model"
)

// ListUniverses returns every universe.
func (c *Client) ListUniverses(ctx context.Context) ([]model.Universe, error) {
	var out []model.Universe
	if err := c.getJSON(ctx, "list universes", "/products/universes", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCategories returns the categories of a universe.
func (c *Client) ListCategories(ctx context.Context, universeID int) ([]model.Category, error) {
	query := url.Values{}
	query.Set("universe_id", strconv.Itoa(universeID))

	var out []model.Category
	if err := c.getJSON(ctx, "list categories", "/products/categories", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListProducts returns the products of a universe, narrowed to a category
// when categoryID is set.
func (c *Client) ListProducts(ctx context.Context, universeID int, categoryID *int) ([]model.Product, error) {
	query := url.Values{}
	query.Set("universe_id", strconv.Itoa(universeID))
	if categoryID != nil {
		query.Set("category_id", strconv.Itoa(*categoryID))
	}

	var out []model.Product
	if err := c.getJSON(ctx, "list products", "/products/", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateCategory creates a category under a universe.
func (c *Client) CreateCategory(ctx context.Context, name string, universeID int) (model.Category, error) {
	payload := map[string]any{
		"name":        name,
		"universe_id": universeID,
	}

	var out model.Category
	if err := c.postJSON(ctx, "create category", "/products/categories", payload, &out); err != nil {
		return model.Category{}, err
	}
	return out, nil
}

// CreateProduct creates a product under a universe and optional category.
func (c *Client) CreateProduct(ctx context.Context, name string, universeID int, categoryID *int) (model.Product, error) {
	payload := map[string]any{
		"name":        name,
		"universe_id": universeID,
	}
	if categoryID != nil {
		payload["category_id"] = *categoryID
	}

	var out model.Product
	if err := c.postJSON(ctx, "create product", "/products", payload, &out); err != nil {
		return model.Product{}, err
	}
	return out, nil
}
