package reconcile

import (
	"context"
	"testing"

	"github.com/Veraticus/matflow/internal/api"
	"github.com/Veraticus/matflow/internal/model"
	"github.com/Veraticus/matflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func complete(confidence float64) model.FileSuggestion {
	return model.FileSuggestion{
		Filename:     "a.pdf",
		UniverseID:   model.IntPtr(1),
		CategoryID:   model.IntPtr(2),
		ProductID:    model.IntPtr(3),
		MaterialType: model.MaterialDatasheet,
		Audience:     model.AudienceInternal,
		Confidence:   confidence,
	}
}

func TestIsReady(t *testing.T) {
	missingProduct := complete(0.9)
	missingProduct.ProductID = nil
	otherWithoutDescription := complete(0.9)
	otherWithoutDescription.MaterialType = model.MaterialOther
	otherWithDescription := otherWithoutDescription
	otherWithDescription.OtherTypeDescription = "Playbook"

	tests := []struct {
		name       string
		suggestion model.FileSuggestion
		threshold  float64
		want       bool
	}{
		{"manual at threshold 0.0", complete(0), 0.0, true},
		{"manual at threshold 0.5", complete(0), 0.5, true},
		{"manual at threshold 1.0", complete(0), 1.0, true},
		{"ai just below threshold", complete(0.79), 0.8, false},
		{"ai at threshold", complete(0.8), 0.8, true},
		{"ai above threshold", complete(0.95), 0.8, true},
		{"reviewed at max threshold", complete(1.0), 1.0, true},
		{"missing product", missingProduct, 0.0, false},
		{"manual missing product", func() model.FileSuggestion { s := missingProduct; s.Confidence = 0; return s }(), 0.0, false},
		{"other without description", otherWithoutDescription, 0.5, false},
		{"other with description", otherWithDescription, 0.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsReady(tt.suggestion, tt.threshold))
		})
	}
}

type hierarchyFixture struct {
	backend  *testutil.Backend
	hier     *Hierarchy
	hardware model.Universe
	software model.Universe
	sensors  model.Category
	apps     model.Category
	widget   model.Product
	editor   model.Product
}

func newHierarchyFixture(t *testing.T) hierarchyFixture {
	t.Helper()
	backend := testutil.NewBackend(t)
	f := hierarchyFixture{backend: backend}
	f.hardware = backend.AddUniverse("Hardware")
	f.software = backend.AddUniverse("Software")
	f.sensors = backend.AddCategory("Sensors", f.hardware.ID)
	f.apps = backend.AddCategory("Apps", f.software.ID)
	f.widget = backend.AddProduct("Widget", f.hardware.ID, model.IntPtr(f.sensors.ID))
	f.editor = backend.AddProduct("Editor", f.software.ID, model.IntPtr(f.apps.ID))

	client, err := api.NewClient(backend.URL(), api.StaticToken(testutil.TestToken))
	require.NoError(t, err)
	f.hier = NewHierarchy(client)
	return f
}

func TestSaveEditFillsNamesAndApproves(t *testing.T) {
	f := newHierarchyFixture(t)
	ctx := context.Background()
	suggestion := model.FileSuggestion{
		Filename:     "brief.pdf",
		UniverseID:   model.IntPtr(f.hardware.ID),
		CategoryID:   model.IntPtr(f.sensors.ID),
		ProductID:    model.IntPtr(f.widget.ID),
		MaterialType: model.MaterialProductBrief,
		Audience:     model.AudienceInternal,
		Confidence:   0.42,
	}
	f.hier.Warm(ctx, []model.FileSuggestion{suggestion})

	store := NewStore(f.hier)
	store.Load([]model.FileSuggestion{suggestion})

	loaded, err := store.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "Hardware", loaded.UniverseName)
	assert.Equal(t, "Sensors", loaded.CategoryName)
	assert.Equal(t, "Widget", loaded.ProductName)

	edit, err := store.BeginEdit(0)
	require.NoError(t, err)
	draft := edit.Suggestion()
	draft.UniverseName, draft.CategoryName, draft.ProductName = "", "", ""
	draft.Filename = "renamed.pdf"
	require.NoError(t, store.SaveEdit(0, draft))

	saved, err := store.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "brief.pdf", saved.Filename)
	assert.Equal(t, "Hardware", saved.UniverseName)
	assert.Equal(t, "Sensors", saved.CategoryName)
	assert.Equal(t, "Widget", saved.ProductName)
	assert.InDelta(t, model.ReviewedConfidence, saved.Confidence, 1e-9)
}

func TestEditDoesNotTouchStoreUntilSaved(t *testing.T) {
	store := NewStore(nil)
	store.Load([]model.FileSuggestion{complete(0.5)})

	edit, err := store.BeginEdit(0)
	require.NoError(t, err)
	edit.SetAudience(model.AudienceBoth)

	row, err := store.Get(0)
	require.NoError(t, err)
	assert.Equal(t, model.AudienceInternal, row.Audience)

	require.NoError(t, edit.Save())
	row, err = store.Get(0)
	require.NoError(t, err)
	assert.Equal(t, model.AudienceBoth, row.Audience)
	assert.InDelta(t, 1.0, row.Confidence, 1e-9)
}

func TestHierarchyCascade(t *testing.T) {
	f := newHierarchyFixture(t)
	ctx := context.Background()
	f.hier.Warm(ctx, []model.FileSuggestion{
		{UniverseID: model.IntPtr(f.hardware.ID)},
		{UniverseID: model.IntPtr(f.software.ID)},
	})

	store := NewStore(f.hier)
	row := complete(0.9)
	row.UniverseID = model.IntPtr(f.hardware.ID)
	row.CategoryID = model.IntPtr(f.sensors.ID)
	row.ProductID = model.IntPtr(f.widget.ID)
	store.Load([]model.FileSuggestion{row})

	t.Run("universe change clears category and product", func(t *testing.T) {
		edit, err := store.BeginEdit(0)
		require.NoError(t, err)
		edit.SetUniverse(f.software.ID)

		got := edit.Suggestion()
		assert.Equal(t, f.software.ID, *got.UniverseID)
		assert.Equal(t, "Software", got.UniverseName)
		assert.Nil(t, got.CategoryID)
		assert.Empty(t, got.CategoryName)
		assert.Nil(t, got.ProductID)
		assert.Empty(t, got.ProductName)
	})

	t.Run("same universe still clears", func(t *testing.T) {
		edit, err := store.BeginEdit(0)
		require.NoError(t, err)
		edit.SetUniverse(f.hardware.ID)
		assert.Nil(t, edit.Suggestion().CategoryID)
		assert.Nil(t, edit.Suggestion().ProductID)
	})

	t.Run("category change clears product only", func(t *testing.T) {
		edit, err := store.BeginEdit(0)
		require.NoError(t, err)
		require.NoError(t, edit.SetCategory(f.sensors.ID))

		got := edit.Suggestion()
		require.NotNil(t, got.UniverseID)
		assert.Equal(t, f.hardware.ID, *got.UniverseID)
		assert.Equal(t, "Sensors", got.CategoryName)
		assert.Nil(t, got.ProductID)
		assert.Empty(t, got.ProductName)

		require.NoError(t, edit.SetProduct(f.widget.ID))
		assert.Equal(t, "Widget", edit.Suggestion().ProductName)
	})
}

func TestStrictHierarchy(t *testing.T) {
	f := newHierarchyFixture(t)
	ctx := context.Background()

	crossed := complete(0.95)
	crossed.UniverseID = model.IntPtr(f.hardware.ID)
	crossed.CategoryID = model.IntPtr(f.apps.ID)
	crossed.ProductID = model.IntPtr(f.editor.ID)

	strayProduct := complete(0.95)
	strayProduct.Filename = "b.pdf"
	strayProduct.UniverseID = model.IntPtr(f.hardware.ID)
	strayProduct.CategoryID = model.IntPtr(f.sensors.ID)
	strayProduct.ProductID = model.IntPtr(f.editor.ID)

	f.hier.Warm(ctx, []model.FileSuggestion{crossed})
	assert.False(t, f.hier.Consistent(crossed))
	assert.False(t, f.hier.Consistent(strayProduct))

	store := NewStore(f.hier)
	store.Load([]model.FileSuggestion{crossed, strayProduct})

	t.Run("load clears a category from another universe", func(t *testing.T) {
		row, err := store.Get(0)
		require.NoError(t, err)
		assert.Equal(t, "Hardware", row.UniverseName)
		assert.Nil(t, row.CategoryID)
		assert.Nil(t, row.ProductID)
		assert.False(t, IsReady(row, 0.8))
	})

	t.Run("load clears a product from another category", func(t *testing.T) {
		row, err := store.Get(1)
		require.NoError(t, err)
		require.NotNil(t, row.CategoryID)
		assert.Equal(t, f.sensors.ID, *row.CategoryID)
		assert.Nil(t, row.ProductID)
		assert.Equal(t, 0, store.ReadyCount(0.8))
	})

	t.Run("edits reject entries outside the parent", func(t *testing.T) {
		edit, err := store.BeginEdit(0)
		require.NoError(t, err)
		assert.ErrorIs(t, edit.SetCategory(f.apps.ID), ErrHierarchyMismatch)
		assert.Nil(t, edit.Suggestion().CategoryID)

		require.NoError(t, edit.SetCategory(f.sensors.ID))
		assert.ErrorIs(t, edit.SetProduct(f.editor.ID), ErrHierarchyMismatch)
		require.NoError(t, edit.SetProduct(f.widget.ID))
		assert.True(t, f.hier.Consistent(edit.Suggestion()))
	})

	t.Run("save prunes a hand-built draft", func(t *testing.T) {
		require.NoError(t, store.SaveEdit(1, strayProduct))
		row, err := store.Get(1)
		require.NoError(t, err)
		assert.Nil(t, row.ProductID)
		assert.Equal(t, f.sensors.ID, *row.CategoryID)
	})
}

func TestCreateCategoryAndProduct(t *testing.T) {
	f := newHierarchyFixture(t)
	ctx := context.Background()

	categories, err := f.hier.Categories(ctx, f.hardware.ID)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	_, err = f.hier.Products(ctx, f.hardware.ID, nil)
	require.NoError(t, err)

	store := NewStore(f.hier)
	store.Load([]model.FileSuggestion{{Filename: "new.pdf", Confidence: 0}})

	edit, err := store.BeginEdit(0)
	require.NoError(t, err)

	_, err = edit.CreateCategory(ctx, "Actuators")
	require.Error(t, err, "a universe is required first")

	edit.SetUniverse(f.hardware.ID)
	category, err := edit.CreateCategory(ctx, "Actuators")
	require.NoError(t, err)
	assert.Equal(t, category.ID, *edit.Suggestion().CategoryID)
	assert.Equal(t, "Actuators", edit.Suggestion().CategoryName)

	categories, err = f.hier.Categories(ctx, f.hardware.ID)
	require.NoError(t, err)
	assert.Len(t, categories, 2)

	product, err := edit.CreateProduct(ctx, "Servo")
	require.NoError(t, err)
	assert.Equal(t, product.ID, *edit.Suggestion().ProductID)
	assert.Equal(t, "Servo", edit.Suggestion().ProductName)
	require.NotNil(t, product.CategoryID)
	assert.Equal(t, category.ID, *product.CategoryID)

	inCategory, err := f.hier.Products(ctx, f.hardware.ID, model.IntPtr(category.ID))
	require.NoError(t, err)
	require.Len(t, inCategory, 1)
	assert.Equal(t, "Servo", inCategory[0].Name)

	all, err := f.hier.Products(ctx, f.hardware.ID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2, "optimistic insert into the universe-wide list")

	edit.SetMaterialType(model.MaterialCaseStudy, "ignored")
	edit.SetAudience(model.AudienceCustomerFacing)
	require.NoError(t, edit.Save())

	row, err := store.Get(0)
	require.NoError(t, err)
	assert.True(t, IsReady(row, 1.0))
	assert.Empty(t, row.OtherTypeDescription)
}

func TestRemoveResetReadyCount(t *testing.T) {
	store := NewStore(nil)
	incomplete := complete(0.9)
	incomplete.Audience = ""
	store.Load([]model.FileSuggestion{complete(0.9), complete(0.3), incomplete, complete(0)})

	assert.Equal(t, 2, store.ReadyCount(0.8))
	assert.Equal(t, 3, store.ReadyCount(0.3))

	require.NoError(t, store.Remove(1))
	assert.Equal(t, 3, store.Len())
	assert.ErrorIs(t, store.Remove(5), ErrIndexOutOfRange)

	_, err := store.BeginEdit(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	store.Reset()
	assert.Zero(t, store.Len())
	assert.Zero(t, store.ReadyCount(0))
}

func TestHierarchyInvalidate(t *testing.T) {
	f := newHierarchyFixture(t)
	ctx := context.Background()

	universes, err := f.hier.Universes(ctx)
	require.NoError(t, err)
	require.Len(t, universes, 2)

	f.backend.AddUniverse("Services")
	universes, err = f.hier.Universes(ctx)
	require.NoError(t, err)
	assert.Len(t, universes, 2, "served from cache")

	f.hier.Invalidate()
	universes, err = f.hier.Universes(ctx)
	require.NoError(t, err)
	assert.Len(t, universes, 3)
}
