package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Veraticus/matflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	err        error
	universes  []model.Universe
	categories map[int][]model.Category
	products   []model.Product
}

func (f *fakeResolver) Universes(context.Context) ([]model.Universe, error) {
	return f.universes, f.err
}

func (f *fakeResolver) Categories(_ context.Context, universeID int) ([]model.Category, error) {
	return f.categories[universeID], f.err
}

func (f *fakeResolver) Products(_ context.Context, universeID int, categoryID *int) ([]model.Product, error) {
	var out []model.Product
	for _, p := range f.products {
		if p.UniverseID != universeID {
			continue
		}
		if categoryID != nil && (p.CategoryID == nil || *p.CategoryID != *categoryID) {
			continue
		}
		out = append(out, p)
	}
	return out, f.err
}

func newResolver() *fakeResolver {
	return &fakeResolver{
		universes: []model.Universe{{ID: 1, Name: "Hardware"}, {ID: 2, Name: "Software"}},
		categories: map[int][]model.Category{
			1: {{ID: 10, Name: "Sensors", UniverseID: 1}},
			2: {{ID: 20, Name: "Platform", UniverseID: 2}},
		},
		products: []model.Product{
			{ID: 100, Name: "Widget", UniverseID: 1, CategoryID: model.IntPtr(10)},
			{ID: 200, Name: "Console", UniverseID: 2, CategoryID: model.IntPtr(20)},
		},
	}
}

const sample = `
defaults:
  universe: Hardware
  category: Sensors
  audience: internal
  material_type: datasheet
files:
  - file: widget.pdf
    product: widget
  - file: console.pdf
    universe: "2"
    product: Console
    material_type: other
    other_type_description: Install guide
  - file: lost.pdf
    product: Gizmo
`

func TestSuggestions(t *testing.T) {
	m, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	files := []model.File{
		model.NewMemoryFile("widget.pdf", []byte("x"), 0),
		model.NewMemoryFile("console.pdf", []byte("x"), 0),
		model.NewMemoryFile("lost.pdf", []byte("x"), 0),
		model.NewMemoryFile("unlisted.pdf", []byte("x"), 0),
	}

	got, err := m.Suggestions(context.Background(), files, newResolver())
	require.NoError(t, err)
	require.Len(t, got, len(files))

	widget := got[0]
	assert.Equal(t, "widget.pdf", widget.Filename)
	assert.Equal(t, 1, *widget.UniverseID)
	assert.Equal(t, 10, *widget.CategoryID)
	assert.Equal(t, 100, *widget.ProductID)
	assert.Equal(t, "Widget", widget.ProductName)
	assert.Equal(t, model.MaterialDatasheet, widget.MaterialType)
	assert.True(t, widget.IsManual())
	assert.True(t, widget.HasRequiredFields())
	assert.Equal(t, ManifestReasoning, widget.Reasoning)

	console := got[1]
	assert.Equal(t, 2, *console.UniverseID)
	assert.Equal(t, 20, *console.CategoryID, "category comes from the product when the universe changes")
	assert.Equal(t, 200, *console.ProductID)
	assert.Equal(t, "Install guide", console.OtherTypeDescription)
	assert.True(t, console.HasRequiredFields())

	lost := got[2]
	assert.Nil(t, lost.ProductID)
	assert.Contains(t, lost.Reasoning, `unknown product "Gizmo"`)
	assert.False(t, lost.HasRequiredFields())

	unlisted := got[3]
	assert.Equal(t, 10, *unlisted.CategoryID)
	assert.Nil(t, unlisted.ProductID)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "files: [\n"},
		{"unknown type", "defaults:\n  material_type: poster\n"},
		{"unknown audience", "files:\n  - file: a.pdf\n    audience: everyone\n"},
		{"missing file", "files:\n  - product: Widget\n"},
		{"duplicate", "files:\n  - file: a.pdf\n  - file: a.pdf\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.yaml))
			require.ErrorIs(t, err, ErrInvalidManifest)
		})
	}
}

func TestSuggestionsResolverError(t *testing.T) {
	m, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	r := newResolver()
	r.err = errors.New("backend down")
	_, err = m.Suggestions(context.Background(), []model.File{model.NewMemoryFile("widget.pdf", nil, 1)}, r)
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, m.Files, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
