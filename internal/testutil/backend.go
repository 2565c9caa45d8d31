// Package testutil provides test utilities for the matflow project.
// Backend is an in-process materials server that speaks the same HTTP
// contract as the real one, so clients and pipelines can be exercised end
// to end without a network.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/matflow/internal/model"
	"github.com/labstack/echo/v4"
)

// TestToken is the bearer token the backend accepts by default.
const TestToken = "test-token"

// UploadRecord captures one upload the backend received.
type UploadRecord struct {
	Fields   map[string]string
	Filename string
	Size     int64
	Status   int
}

type storedMaterial struct {
	model.Material
	productName string
}

// Backend is a fake materials backend.
type Backend struct {
	server          *httptest.Server
	suggestions     map[string]model.FileSuggestion
	analyzeFailures map[string]int
	uploadFailures  map[string]int
	analyzeDelay    map[string]time.Duration
	token           string
	universes       []model.Universe
	categories      []model.Category
	products        []model.Product
	materials       []storedMaterial
	analyzeCalls    []string
	uploads         []UploadRecord
	duplicateChecks int
	duplicateStatus int
	nextID          int
	mu              sync.Mutex
	analyzeAsArray  bool
}

// NewBackend starts a fake backend and registers its shutdown with t.
func NewBackend(t *testing.T) *Backend {
	t.Helper()

	b := &Backend{
		token:           TestToken,
		suggestions:     make(map[string]model.FileSuggestion),
		analyzeFailures: make(map[string]int),
		uploadFailures:  make(map[string]int),
		analyzeDelay:    make(map[string]time.Duration),
		nextID:          100,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	g := e.Group("/api", b.requireToken)
	g.POST("/materials/batch/analyze", b.handleAnalyze)
	g.GET("/materials/check-duplicate", b.handleCheckDuplicate)
	g.POST("/materials/upload", b.handleUpload)
	g.GET("/products/universes", b.handleUniverses)
	g.GET("/products/categories", b.handleCategories)
	g.POST("/products/categories", b.handleCreateCategory)
	g.GET("/products/", b.handleProducts)
	g.POST("/products", b.handleCreateProduct)

	b.server = httptest.NewServer(e)
	t.Cleanup(b.server.Close)

	return b
}

// URL returns the API base URL.
func (b *Backend) URL() string {
	return b.server.URL + "/api"
}

// SetToken changes the accepted bearer token.
func (b *Backend) SetToken(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = token
}

// SetSuggestion configures the analyze answer for a filename.
func (b *Backend) SetSuggestion(filename string, s model.FileSuggestion) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.suggestions[filename] = s
}

// AnswerAnalyzeAsArray makes analyze wrap its answer in a one-element list.
func (b *Backend) AnswerAnalyzeAsArray() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.analyzeAsArray = true
}

// FailAnalyze makes analyze answer status for a filename.
func (b *Backend) FailAnalyze(filename string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.analyzeFailures[filename] = status
}

// DelayAnalyze holds the analyze answer for a filename until d elapses or
// the client gives up.
func (b *Backend) DelayAnalyze(filename string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.analyzeDelay[filename] = d
}

// FailUpload makes upload answer status for a filename.
func (b *Backend) FailUpload(filename string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploadFailures[filename] = status
}

// FailDuplicateChecks makes every check-duplicate call answer status.
func (b *Backend) FailDuplicateChecks(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.duplicateStatus = status
}

// AddUniverse seeds a universe.
func (b *Backend) AddUniverse(name string) model.Universe {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := model.Universe{ID: b.id(), Name: name}
	b.universes = append(b.universes, u)
	return u
}

// AddCategory seeds a category.
func (b *Backend) AddCategory(name string, universeID int) model.Category {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := model.Category{ID: b.id(), Name: name, UniverseID: universeID}
	b.categories = append(b.categories, c)
	return c
}

// AddProduct seeds a product.
func (b *Backend) AddProduct(name string, universeID int, categoryID *int) model.Product {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := model.Product{ID: b.id(), Name: name, UniverseID: universeID, CategoryID: categoryID}
	b.products = append(b.products, p)
	return p
}

// AddMaterial seeds an active material for a product and material type.
func (b *Backend) AddMaterial(name string, product model.Product, materialType model.MaterialType) model.MaterialSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := storedMaterial{
		Material: model.Material{
			ID:           b.id(),
			Name:         name,
			ProductID:    model.IntPtr(product.ID),
			MaterialType: materialType,
			Status:       "active",
			CreatedAt:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		productName: product.Name,
	}
	b.materials = append(b.materials, m)
	return snapshot(m.Material)
}

// AnalyzeCalls returns the filenames analyze was called with, in order.
func (b *Backend) AnalyzeCalls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.analyzeCalls...)
}

// Uploads returns every upload received, in order.
func (b *Backend) Uploads() []UploadRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]UploadRecord(nil), b.uploads...)
}

// DuplicateChecks returns how many check-duplicate calls were received.
func (b *Backend) DuplicateChecks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.duplicateChecks
}

// ActiveMaterials returns the materials currently active.
func (b *Backend) ActiveMaterials() []model.Material {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.Material
	for _, m := range b.materials {
		if m.Status == "active" {
			out = append(out, m.Material)
		}
	}
	return out
}

// Categories returns the stored categories.
func (b *Backend) Categories() []model.Category {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Category(nil), b.categories...)
}

// Products returns the stored products.
func (b *Backend) Products() []model.Product {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Product(nil), b.products...)
}

func (b *Backend) id() int {
	b.nextID++
	return b.nextID
}

func (b *Backend) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		b.mu.Lock()
		want := "Bearer " + b.token
		b.mu.Unlock()
		if c.Request().Header.Get(echo.HeaderAuthorization) != want {
			return c.JSON(http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
		}
		return next(c)
	}
}

func (b *Backend) handleAnalyze(c echo.Context) error {
	fh, err := c.FormFile("files")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "files is required"})
	}

	b.mu.Lock()
	b.analyzeCalls = append(b.analyzeCalls, fh.Filename)
	status := b.analyzeFailures[fh.Filename]
	delay := b.analyzeDelay[fh.Filename]
	suggestion, ok := b.suggestions[fh.Filename]
	asArray := b.analyzeAsArray
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	}
	if status != 0 {
		return c.JSON(status, map[string]string{"detail": "analysis failed"})
	}
	if !ok {
		suggestion = model.FileSuggestion{Reasoning: "no match", Confidence: 0.1}
	}
	suggestion.Filename = fh.Filename

	if asArray {
		return c.JSON(http.StatusOK, []model.FileSuggestion{suggestion})
	}
	return c.JSON(http.StatusOK, suggestion)
}

func (b *Backend) handleCheckDuplicate(c echo.Context) error {
	productName := c.QueryParam("product_name")
	materialType := model.MaterialType(c.QueryParam("material_type"))

	b.mu.Lock()
	defer b.mu.Unlock()
	b.duplicateChecks++

	if b.duplicateStatus != 0 {
		return c.JSON(b.duplicateStatus, map[string]string{"detail": "unavailable"})
	}
	for _, m := range b.materials {
		if m.Status == "active" && m.productName == productName && m.MaterialType == materialType {
			snap := snapshot(m.Material)
			return c.JSON(http.StatusOK, map[string]any{"exists": true, "material": snap})
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"exists": false})
}

func (b *Backend) handleUpload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "file is required"})
	}
	src, err := fh.Open()
	if err != nil {
		return err
	}
	size, err := io.Copy(io.Discard, src)
	_ = src.Close()
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return err
	}
	fields := make(map[string]string, len(form.Value))
	for k, v := range form.Value {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	record := UploadRecord{Filename: fh.Filename, Size: size, Fields: fields}

	if status := b.uploadFailures[fh.Filename]; status != 0 {
		record.Status = status
		b.uploads = append(b.uploads, record)
		return c.JSON(status, map[string]string{"detail": "upload rejected"})
	}

	productID, _ := strconv.Atoi(fields["product_id"])
	materialType := model.MaterialType(fields["material_type"])
	replace := fields["replace_existing"] == "true"

	for i := range b.materials {
		m := &b.materials[i]
		if m.Status != "active" || m.ProductID == nil || *m.ProductID != productID || m.MaterialType != materialType {
			continue
		}
		if !replace {
			record.Status = http.StatusConflict
			b.uploads = append(b.uploads, record)
			return c.JSON(http.StatusConflict, map[string]any{
				"detail": map[string]any{
					"message":           "material already exists",
					"existing_material": snapshot(m.Material),
				},
			})
		}
		m.Status = "archived"
	}

	created := storedMaterial{
		Material: model.Material{
			ID:           b.id(),
			Name:         fh.Filename,
			ProductID:    model.IntPtr(productID),
			MaterialType: materialType,
			Audience:     model.Audience(fields["audience"]),
			Status:       "active",
			CreatedAt:    time.Now().UTC(),
		},
		productName: fields["product_name"],
	}
	b.materials = append(b.materials, created)

	record.Status = http.StatusCreated
	b.uploads = append(b.uploads, record)
	return c.JSON(http.StatusCreated, created.Material)
}

func (b *Backend) handleUniverses(c echo.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return c.JSON(http.StatusOK, append([]model.Universe{}, b.universes...))
}

func (b *Backend) handleCategories(c echo.Context) error {
	universeID, err := strconv.Atoi(c.QueryParam("universe_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "universe_id is required"})
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	out := []model.Category{}
	for _, cat := range b.categories {
		if cat.UniverseID == universeID {
			out = append(out, cat)
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (b *Backend) handleProducts(c echo.Context) error {
	universeID, err := strconv.Atoi(c.QueryParam("universe_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "universe_id is required"})
	}
	var categoryID *int
	if raw := c.QueryParam("category_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid category_id"})
		}
		categoryID = &id
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	out := []model.Product{}
	for _, p := range b.products {
		if p.UniverseID != universeID {
			continue
		}
		if categoryID != nil && (p.CategoryID == nil || *p.CategoryID != *categoryID) {
			continue
		}
		out = append(out, p)
	}
	return c.JSON(http.StatusOK, out)
}

type createRequest struct {
	CategoryID *int   `json:"category_id"`
	Name       string `json:"name"`
	UniverseID int    `json:"universe_id"`
}

func (b *Backend) handleCreateCategory(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "name is required"})
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	cat := model.Category{ID: b.id(), Name: req.Name, UniverseID: req.UniverseID}
	b.categories = append(b.categories, cat)
	return c.JSON(http.StatusCreated, cat)
}

func (b *Backend) handleCreateProduct(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "name is required"})
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	p := model.Product{ID: b.id(), Name: req.Name, UniverseID: req.UniverseID, CategoryID: req.CategoryID}
	b.products = append(b.products, p)
	return c.JSON(http.StatusCreated, p)
}

func snapshot(m model.Material) model.MaterialSnapshot {
	return model.MaterialSnapshot{ID: m.ID, Name: m.Name, CreatedAt: m.CreatedAt}
}
