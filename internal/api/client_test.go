package api_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/matflow/internal/api"
	"github.com/Veraticus/matflow/internal/common"
	"github.com/Veraticus/matflow/internal/model"
	"github.com/Veraticus/matflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, backend *testutil.Backend, opts ...api.Option) *api.Client {
	t.Helper()
	opts = append([]api.Option{api.WithRetryOptions(common.RetryOptions{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
	})}, opts...)
	client, err := api.NewClient(backend.URL(), api.StaticToken(testutil.TestToken), opts...)
	require.NoError(t, err)
	return client
}

func TestNewClientValidation(t *testing.T) {
	_, err := api.NewClient("http://localhost", nil)
	require.ErrorIs(t, err, common.ErrNoToken)

	_, err = api.NewClient("not a url", api.StaticToken("x"))
	require.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestAnalyzeFile(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.SetSuggestion("brief.pdf", model.FileSuggestion{
		UniverseID:   model.IntPtr(1),
		CategoryID:   model.IntPtr(2),
		ProductID:    model.IntPtr(3),
		ProductName:  "Widget",
		MaterialType: model.MaterialProductBrief,
		Audience:     model.AudienceInternal,
		Confidence:   0.92,
	})
	client := newClient(t, backend)

	got, err := client.AnalyzeFile(context.Background(), model.NewMemoryFile("brief.pdf", []byte("%PDF"), 0))
	require.NoError(t, err)
	assert.Equal(t, "brief.pdf", got.Filename)
	assert.InDelta(t, 0.92, got.Confidence, 1e-9)
	require.NotNil(t, got.ProductID)
	assert.Equal(t, 3, *got.ProductID)
	assert.Equal(t, []string{"brief.pdf"}, backend.AnalyzeCalls())
}

func TestAnalyzeFileArrayAnswer(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.AnswerAnalyzeAsArray()
	backend.SetSuggestion("deck.pptx", model.FileSuggestion{Confidence: 0.4, MaterialType: model.MaterialSalesDeck})
	client := newClient(t, backend)

	got, err := client.AnalyzeFile(context.Background(), model.NewMemoryFile("deck.pptx", []byte("x"), 0))
	require.NoError(t, err)
	assert.Equal(t, "deck.pptx", got.Filename)
	assert.Equal(t, model.MaterialSalesDeck, got.MaterialType)
}

func TestAnalyzeFileErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"server error", http.StatusInternalServerError, common.ErrBackendDown},
		{"too large", http.StatusRequestEntityTooLarge, common.ErrPayloadTooLarge},
		{"forbidden", http.StatusForbidden, common.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := testutil.NewBackend(t)
			backend.FailAnalyze("a.pdf", tt.status)
			client := newClient(t, backend)

			_, err := client.AnalyzeFile(context.Background(), model.NewMemoryFile("a.pdf", []byte("x"), 0))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var statusErr *api.StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.StatusCode)
		})
	}
}

func TestAnalyzeFileHonorsDeadline(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.DelayAnalyze("slow.pdf", 5*time.Second)
	client := newClient(t, backend)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.AnalyzeFile(ctx, model.NewMemoryFile("slow.pdf", []byte("x"), 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || common.IsRetryable(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestUnauthorized(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.SetToken("other")
	client := newClient(t, backend)

	_, err := client.ListUniverses(context.Background())
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestCheckDuplicate(t *testing.T) {
	backend := testutil.NewBackend(t)
	u := backend.AddUniverse("Hardware")
	p := backend.AddProduct("Widget", u.ID, nil)
	existing := backend.AddMaterial("old-brief.pdf", p, model.MaterialProductBrief)
	client := newClient(t, backend)

	got, err := client.CheckDuplicate(context.Background(), "Widget", model.MaterialProductBrief)
	require.NoError(t, err)
	assert.True(t, got.Exists)
	require.NotNil(t, got.Material)
	assert.Equal(t, existing.ID, got.Material.ID)
	assert.Equal(t, "old-brief.pdf", got.Material.Name)

	got, err = client.CheckDuplicate(context.Background(), "Widget", model.MaterialDatasheet)
	require.NoError(t, err)
	assert.False(t, got.Exists)
	assert.Nil(t, got.Material)
}

func TestCheckDuplicateRetriesServerErrors(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.FailDuplicateChecks(http.StatusServiceUnavailable)
	client := newClient(t, backend)

	_, err := client.CheckDuplicate(context.Background(), "Widget", model.MaterialDatasheet)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMaxRetries)
	assert.ErrorIs(t, err, common.ErrBackendDown)
	assert.Equal(t, 2, backend.DuplicateChecks())
}

func uploadRequest(t *testing.T, backend *testutil.Backend, name string, size int) (model.UploadRequest, model.Product) {
	t.Helper()
	u := backend.AddUniverse("Hardware")
	c := backend.AddCategory("Sensors", u.ID)
	p := backend.AddProduct("Widget", u.ID, model.IntPtr(c.ID))

	data := make([]byte, size)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	req := model.NewUploadRequest(model.NewMemoryFile(name, data, 0), model.FileSuggestion{
		UniverseID:   model.IntPtr(u.ID),
		CategoryID:   model.IntPtr(c.ID),
		ProductID:    model.IntPtr(p.ID),
		UniverseName: u.Name,
		CategoryName: c.Name,
		ProductName:  p.Name,
		MaterialType: model.MaterialDatasheet,
		Audience:     model.AudienceBoth,
	})
	return req, p
}

func TestUploadStreamsWithProgress(t *testing.T) {
	backend := testutil.NewBackend(t)
	req, _ := uploadRequest(t, backend, "sheet.pdf", 256<<10)
	fresh := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	req.FreshnessDate = &fresh
	client := newClient(t, backend)

	var (
		mu    sync.Mutex
		calls int
		last  int64
		total int64
	)
	material, err := client.Upload(context.Background(), req, func(sent, size int64) {
		mu.Lock()
		defer mu.Unlock()
		assert.GreaterOrEqual(t, sent, last)
		calls++
		last = sent
		total = size
	})
	require.NoError(t, err)
	require.NotNil(t, material)
	assert.Equal(t, "sheet.pdf", material.Name)

	mu.Lock()
	assert.Positive(t, calls)
	assert.Equal(t, int64(256<<10), last)
	assert.Equal(t, int64(256<<10), total)
	mu.Unlock()

	uploads := backend.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, int64(256<<10), uploads[0].Size)
	assert.Equal(t, "datasheet", uploads[0].Fields["material_type"])
	assert.Equal(t, "both", uploads[0].Fields["audience"])
	assert.Equal(t, "Widget", uploads[0].Fields["product_name"])
	assert.Equal(t, "2025-06-01", uploads[0].Fields["freshness_date"])
	assert.Empty(t, uploads[0].Fields["replace_existing"])
	assert.Empty(t, uploads[0].Fields["other_type_description"])
	assert.NotEmpty(t, uploads[0].Fields["product_id"])
}

func TestUploadConflictAndReplace(t *testing.T) {
	backend := testutil.NewBackend(t)
	req, p := uploadRequest(t, backend, "sheet.pdf", 1024)
	existing := backend.AddMaterial("old-sheet.pdf", p, model.MaterialDatasheet)
	client := newClient(t, backend)

	_, err := client.Upload(context.Background(), req, nil)
	require.Error(t, err)

	var conflict *api.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, existing.ID, conflict.Existing.ID)
	assert.Equal(t, "old-sheet.pdf", conflict.Existing.Name)
	require.NotNil(t, conflict.Payload)
	assert.False(t, conflict.Payload.ReplaceExisting)
	assert.Equal(t, "sheet.pdf", conflict.Conflict().PendingPayload.File.Name)

	material, err := client.Upload(context.Background(), conflict.Payload.WithReplace(), nil)
	require.NoError(t, err)
	assert.NotEqual(t, existing.ID, material.ID)

	active := backend.ActiveMaterials()
	require.Len(t, active, 1)
	assert.Equal(t, material.ID, active[0].ID)

	uploads := backend.Uploads()
	require.Len(t, uploads, 2)
	assert.Equal(t, http.StatusConflict, uploads[0].Status)
	assert.Equal(t, "true", uploads[1].Fields["replace_existing"])
}

func TestUploadOtherTypeDescription(t *testing.T) {
	backend := testutil.NewBackend(t)
	req, _ := uploadRequest(t, backend, "notes.txt", 10)
	req.MaterialType = model.MaterialOther
	req.OtherTypeDescription = "Field notes"
	client := newClient(t, backend)

	_, err := client.Upload(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, "Field notes", backend.Uploads()[0].Fields["other_type_description"])
}

func TestUploadRejected(t *testing.T) {
	backend := testutil.NewBackend(t)
	req, _ := uploadRequest(t, backend, "big.pdf", 10)
	backend.FailUpload("big.pdf", http.StatusRequestEntityTooLarge)
	client := newClient(t, backend)

	_, err := client.Upload(context.Background(), req, nil)
	require.ErrorIs(t, err, common.ErrPayloadTooLarge)
}

func TestUploadCanceled(t *testing.T) {
	backend := testutil.NewBackend(t)
	req, _ := uploadRequest(t, backend, "sheet.pdf", 10)
	client := newClient(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Upload(ctx, req, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, backend.Uploads())
}

func TestHierarchy(t *testing.T) {
	backend := testutil.NewBackend(t)
	hw := backend.AddUniverse("Hardware")
	sw := backend.AddUniverse("Software")
	sensors := backend.AddCategory("Sensors", hw.ID)
	backend.AddCategory("Apps", sw.ID)
	backend.AddProduct("Widget", hw.ID, model.IntPtr(sensors.ID))
	backend.AddProduct("Loose", hw.ID, nil)
	client := newClient(t, backend)
	ctx := context.Background()

	universes, err := client.ListUniverses(ctx)
	require.NoError(t, err)
	assert.Len(t, universes, 2)

	categories, err := client.ListCategories(ctx, hw.ID)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "Sensors", categories[0].Name)

	all, err := client.ListProducts(ctx, hw.ID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	inCategory, err := client.ListProducts(ctx, hw.ID, model.IntPtr(sensors.ID))
	require.NoError(t, err)
	require.Len(t, inCategory, 1)
	assert.Equal(t, "Widget", inCategory[0].Name)

	created, err := client.CreateCategory(ctx, "Actuators", hw.ID)
	require.NoError(t, err)
	assert.Equal(t, hw.ID, created.UniverseID)
	assert.NotZero(t, created.ID)

	product, err := client.CreateProduct(ctx, "Servo", hw.ID, model.IntPtr(created.ID))
	require.NoError(t, err)
	require.NotNil(t, product.CategoryID)
	assert.Equal(t, created.ID, *product.CategoryID)
	assert.Len(t, backend.Products(), 3)
}
