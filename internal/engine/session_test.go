package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/Veraticus/matflow/internal/api"
	"github.com/Veraticus/matflow/internal/classifier"
	"github.com/Veraticus/matflow/internal/common"
	"github.com/Veraticus/matflow/internal/duplicate"
	"github.com/Veraticus/matflow/internal/model"
	"github.com/Veraticus/matflow/internal/reconcile"
	"github.com/Veraticus/matflow/internal/testutil"
	"github.com/Veraticus/matflow/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type classifierFunc func(ctx context.Context, files []model.File, onProgress classifier.ProgressFunc) ([]model.FileSuggestion, error)

func (f classifierFunc) Classify(ctx context.Context, files []model.File, onProgress classifier.ProgressFunc) ([]model.FileSuggestion, error) {
	return f(ctx, files, onProgress)
}

type reviewerFunc func(ctx context.Context, files []model.File, store *reconcile.Store, hierarchy *reconcile.Hierarchy, threshold reconcile.Threshold) error

func (f reviewerFunc) Review(ctx context.Context, files []model.File, store *reconcile.Store, hierarchy *reconcile.Hierarchy, threshold reconcile.Threshold) error {
	return f(ctx, files, store, hierarchy, threshold)
}

type harness struct {
	backend   *testutil.Backend
	session   *Session
	universe  model.Universe
	category  model.Category
	product   model.Product
	hierarchy *reconcile.Hierarchy
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := testutil.NewBackend(t)
	h := &harness{backend: backend}
	h.universe = backend.AddUniverse("Hardware")
	h.category = backend.AddCategory("Sensors", h.universe.ID)
	h.product = backend.AddProduct("Widget", h.universe.ID, model.IntPtr(h.category.ID))

	client, err := api.NewClient(backend.URL(), api.StaticToken(testutil.TestToken))
	require.NoError(t, err)

	h.hierarchy = reconcile.NewHierarchy(client)
	runner := upload.NewExecutor(client,
		upload.WithChecker(duplicate.NewResolver(client)),
		upload.WithOnReplaced(func(*model.Material) { h.hierarchy.Invalidate() }))
	h.session = NewSession(context.Background(), classifier.New(client), runner, h.hierarchy, Config{
		Threshold: 0.8,
		Defaults:  classifier.Defaults{MaterialType: model.MaterialProductBrief, Audience: model.AudienceInternal},
	})
	t.Cleanup(h.session.Close)
	return h
}

func (h *harness) aiSuggestion(confidence float64) model.FileSuggestion {
	return model.FileSuggestion{
		UniverseID:   model.IntPtr(h.universe.ID),
		CategoryID:   model.IntPtr(h.category.ID),
		ProductID:    model.IntPtr(h.product.ID),
		MaterialType: model.MaterialDatasheet,
		Audience:     model.AudienceInternal,
		Confidence:   confidence,
	}
}

func TestSessionEndToEnd(t *testing.T) {
	h := newHarness(t)
	a := h.aiSuggestion(0.9)
	c := h.aiSuggestion(0.85)
	c.MaterialType = model.MaterialCaseStudy
	h.backend.SetSuggestion("a.pdf", a)
	h.backend.SetSuggestion("c.pdf", c)

	require.NoError(t, h.session.AddFiles(
		model.NewMemoryFile("a.pdf", []byte("a"), 50<<20),
		model.NewMemoryFile("b.pdf", []byte("b"), 150<<20),
		model.NewMemoryFile("c.pdf", []byte("c"), 10<<20),
	))

	var progress []int
	require.NoError(t, h.session.Analyze(func(current, _ int) { progress = append(progress, current) }))
	assert.Equal(t, []int{1, 2, 3}, progress)
	assert.Equal(t, []string{"a.pdf", "c.pdf"}, h.backend.AnalyzeCalls())

	store := h.session.Store()
	rows := store.Suggestions()
	require.Len(t, rows, 3)
	assert.Equal(t, "Widget", rows[0].ProductName, "names filled from the hierarchy")
	assert.Zero(t, rows[1].Confidence)
	assert.Contains(t, rows[1].Reasoning, "too large")
	assert.Equal(t, 2, store.ReadyCount(h.session.Threshold()))

	reviewer := reviewerFunc(func(ctx context.Context, files []model.File, store *reconcile.Store, hierarchy *reconcile.Hierarchy, threshold reconcile.Threshold) error {
		require.Len(t, files, 3)
		edit, err := store.BeginEdit(1)
		if err != nil {
			return err
		}
		edit.SetUniverse(h.universe.ID)
		if err := edit.SetCategory(h.category.ID); err != nil {
			return err
		}
		if err := edit.SetProduct(h.product.ID); err != nil {
			return err
		}
		edit.SetMaterialType(model.MaterialSalesDeck, "")
		edit.SetAudience(model.AudienceBoth)
		return edit.Save()
	})
	require.NoError(t, h.session.Review(reviewer))

	edited, err := store.Get(1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, edited.Confidence, 1e-9)
	for _, row := range store.Suggestions() {
		assert.True(t, reconcile.IsReady(row, h.session.Threshold()), row.Filename)
	}

	result, err := h.session.Upload()
	require.NoError(t, err)
	assert.Equal(t, 3, result.SuccessCount)
	assert.Zero(t, result.FailureCount)

	assert.Empty(t, h.session.Files(), "clean run resets the session")
	assert.Zero(t, store.Len())
	last, ok := h.session.LastResult()
	require.True(t, ok)
	assert.Equal(t, 3, last.SuccessCount)
}

func TestSessionKeepsStateAfterFailures(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.AddFiles(model.NewMemoryFile("a.pdf", []byte("a"), 0)))
	require.NoError(t, h.session.SkipAI())

	rows := h.session.Store().Suggestions()
	require.Len(t, rows, 1)
	assert.Equal(t, model.ManualReasoning, rows[0].Reasoning)
	assert.Equal(t, model.MaterialProductBrief, rows[0].MaterialType)

	result, err := h.session.Upload()
	require.NoError(t, err)
	assert.Equal(t, 1, result.FailureCount)
	assert.Len(t, h.session.Files(), 1)
	assert.Equal(t, 1, h.session.Store().Len())

	entry, ok := h.session.runner.Tracker().Get("a.pdf")
	require.True(t, ok)
	assert.Equal(t, model.UploadError, entry.Status)
}

func TestSessionThresholdChangeAppliesAtUpload(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.AddFiles(model.NewMemoryFile("a.pdf", []byte("a"), 0)))
	require.NoError(t, h.session.Prefill([]model.FileSuggestion{h.aiSuggestion(0.6)}))

	result, err := h.session.Upload()
	require.NoError(t, err)
	assert.Equal(t, 1, result.FailureCount)

	require.Error(t, h.session.SetThreshold(1.5))
	require.NoError(t, h.session.SetThreshold(0.5))
	result, err = h.session.Upload()
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
}

func TestSessionReviewerLowersThreshold(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.AddFiles(model.NewMemoryFile("a.pdf", []byte("a"), 0)))
	require.NoError(t, h.session.Prefill([]model.FileSuggestion{h.aiSuggestion(0.6)}))

	reviewer := reviewerFunc(func(_ context.Context, _ []model.File, store *reconcile.Store, _ *reconcile.Hierarchy, threshold reconcile.Threshold) error {
		assert.Zero(t, store.ReadyCount(threshold.Threshold()))
		return threshold.SetThreshold(0.5)
	})
	require.NoError(t, h.session.Review(reviewer))
	assert.InDelta(t, 0.5, h.session.Threshold(), 1e-9)

	result, err := h.session.Upload()
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
}

func TestSessionRemoveFileKeepsAlignment(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.AddFiles(
		model.NewMemoryFile("a.pdf", []byte("a"), 0),
		model.NewMemoryFile("b.pdf", []byte("b"), 0),
	))
	require.NoError(t, h.session.SkipAI())
	require.NoError(t, h.session.RemoveFile(0))

	files := h.session.Files()
	rows := h.session.Store().Suggestions()
	require.Len(t, files, 1)
	require.Len(t, rows, 1)
	assert.Equal(t, "b.pdf", files[0].Name)
	assert.Equal(t, "b.pdf", rows[0].Filename)

	assert.ErrorIs(t, h.session.RemoveFile(3), reconcile.ErrIndexOutOfRange)
	assert.ErrorIs(t, h.session.Prefill(nil), common.ErrMisaligned)
}

func TestSessionCloseCancelsAnalysis(t *testing.T) {
	runner := upload.NewExecutor(nil)
	started := make(chan struct{})
	cls := classifierFunc(func(ctx context.Context, files []model.File, _ classifier.ProgressFunc) ([]model.FileSuggestion, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	session := NewSession(context.Background(), cls, runner, nil, Config{Threshold: 0.5})
	require.NoError(t, session.AddFiles(model.NewMemoryFile("a.pdf", []byte("a"), 0)))

	done := make(chan error, 1)
	go func() { done <- session.Analyze(nil) }()

	<-started
	session.Close()
	err := <-done
	require.ErrorIs(t, err, common.ErrSessionClosed)
	assert.Zero(t, session.Store().Len(), "no state applied after close")

	assert.ErrorIs(t, session.AddFiles(model.NewMemoryFile("b.pdf", nil, 0)), common.ErrSessionClosed)
	_, err = session.Upload()
	assert.ErrorIs(t, err, common.ErrSessionClosed)
	session.Close()
}

func TestSessionAnalyzeErrors(t *testing.T) {
	errBoom := errors.New("boom")
	session := NewSession(context.Background(), classifierFunc(func(context.Context, []model.File, classifier.ProgressFunc) ([]model.FileSuggestion, error) {
		return nil, errBoom
	}), upload.NewExecutor(nil), nil, Config{})
	t.Cleanup(session.Close)

	require.ErrorIs(t, session.Analyze(nil), common.ErrNoFiles)
	require.NoError(t, session.AddFiles(model.NewMemoryFile("a.pdf", nil, 0)))
	require.ErrorIs(t, session.Analyze(nil), errBoom)
	assert.NotEmpty(t, session.ID())
}

func TestSessionUploadContextCancel(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.AddFiles(
		model.NewMemoryFile("a.pdf", []byte("a"), 0),
		model.NewMemoryFile("b.pdf", []byte("b"), 0),
	))
	require.NoError(t, h.session.Prefill([]model.FileSuggestion{h.aiSuggestion(0.9), h.aiSuggestion(0.9)}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.session.UploadContext(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, result.FailureCount)
	assert.Empty(t, h.backend.Uploads())

	// The session itself stays usable.
	require.NoError(t, h.session.Context().Err())
	assert.Len(t, h.session.Files(), 2)
}
