package model

// Universe is the top level of the product taxonomy.
type Universe struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ID          int    `json:"id"`
}

// Category belongs to exactly one universe.
type Category struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ID          int    `json:"id"`
	UniverseID  int    `json:"universe_id"`
}

// Product belongs to a universe and, optionally, a category.
type Product struct {
	CategoryID  *int   `json:"category_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ID          int    `json:"id"`
	UniverseID  int    `json:"universe_id"`
}
