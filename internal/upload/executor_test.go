package upload

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/matflow/internal/api"
	"github.com/Veraticus/matflow/internal/common"
	"github.com/Veraticus/matflow/internal/config"
	"github.com/Veraticus/matflow/internal/duplicate"
	"github.com/Veraticus/matflow/internal/model"
	"github.com/Veraticus/matflow/internal/replace"
	"github.com/Veraticus/matflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryJournal struct {
	entries []model.JournalEntry
	mu      sync.Mutex
}

func (j *memoryJournal) RecordUpload(_ context.Context, entry model.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

type countingObserver struct {
	outcomes map[string]int
	mu       sync.Mutex
}

func (o *countingObserver) ObserveUpload(outcome string, _ int64, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[string]int)
	}
	o.outcomes[outcome]++
}

type deciderFunc func(ctx context.Context, snap replace.Snapshot) (bool, error)

func (f deciderFunc) ConfirmReplace(ctx context.Context, snap replace.Snapshot) (bool, error) {
	return f(ctx, snap)
}

type fixture struct {
	backend *testutil.Backend
	client  *api.Client
	product model.Product
	base    model.FileSuggestion
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	backend := testutil.NewBackend(t)
	u := backend.AddUniverse("Hardware")
	c := backend.AddCategory("Sensors", u.ID)
	p := backend.AddProduct("Widget", u.ID, model.IntPtr(c.ID))

	client, err := api.NewClient(backend.URL(), api.StaticToken(testutil.TestToken),
		api.WithRetryOptions(common.RetryOptions{MaxAttempts: 1, InitialDelay: time.Millisecond}))
	require.NoError(t, err)

	return fixture{
		backend: backend,
		client:  client,
		product: p,
		base: model.FileSuggestion{
			UniverseID:   model.IntPtr(u.ID),
			CategoryID:   model.IntPtr(c.ID),
			ProductID:    model.IntPtr(p.ID),
			UniverseName: u.Name,
			CategoryName: c.Name,
			ProductName:  p.Name,
			MaterialType: model.MaterialDatasheet,
			Audience:     model.AudienceInternal,
			Confidence:   0.9,
		},
	}
}

func (f fixture) suggestion(name string, mt model.MaterialType) model.FileSuggestion {
	s := f.base
	s.Filename = name
	s.MaterialType = mt
	return s
}

func file(name string) model.File {
	return model.NewMemoryFile(name, []byte("payload for "+name), 0)
}

func TestRunRejectsBadInput(t *testing.T) {
	exec := NewExecutor(nil)

	_, err := exec.Run(context.Background(), []model.File{file("a.pdf")}, nil, 0.5)
	require.ErrorIs(t, err, common.ErrMisaligned)

	_, err = exec.Run(context.Background(), nil, nil, 0.5)
	require.ErrorIs(t, err, common.ErrNoFiles)
}

func TestRunIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.backend.FailUpload("b.pdf", http.StatusInternalServerError)
	journal := &memoryJournal{}
	observer := &countingObserver{}
	exec := NewExecutor(f.client,
		WithChecker(duplicate.NewResolver(f.client)),
		WithJournal(journal, "batch-1"),
		WithObserver(observer))

	files := []model.File{file("a.pdf"), file("b.pdf"), file("c.pdf")}
	suggestions := []model.FileSuggestion{
		f.suggestion("a.pdf", model.MaterialDatasheet),
		f.suggestion("b.pdf", model.MaterialSalesDeck),
		f.suggestion("c.pdf", model.MaterialCaseStudy),
	}

	result, err := exec.Run(context.Background(), files, suggestions, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)
	assert.Equal(t, len(files), result.Total())
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "b.pdf", result.Failures[0].Filename)
	assert.Equal(t, []string{"a.pdf", "c.pdf"}, []string{result.Successes[0].Filename, result.Successes[1].Filename})

	a, _ := exec.Tracker().Get("a.pdf")
	b, _ := exec.Tracker().Get("b.pdf")
	c, _ := exec.Tracker().Get("c.pdf")
	assert.Equal(t, model.UploadSuccess, a.Status)
	assert.Equal(t, 100, a.Progress)
	assert.Equal(t, model.UploadError, b.Status)
	assert.NotEmpty(t, b.Error)
	assert.Equal(t, model.UploadSuccess, c.Status)

	require.Len(t, journal.entries, 3)
	assert.Equal(t, model.JournalFailed, journal.entries[1].Status)
	assert.Equal(t, "batch-1", journal.entries[0].BatchID)
	require.NotNil(t, journal.entries[2].MaterialID)
	assert.Equal(t, 2, observer.outcomes[OutcomeUploaded])
	assert.Equal(t, 1, observer.outcomes[OutcomeFailed])
}

func TestRunValidatesWithoutNetwork(t *testing.T) {
	f := newFixture(t)
	exec := NewExecutor(f.client, WithChecker(duplicate.NewResolver(f.client)))

	missing := f.suggestion("a.pdf", model.MaterialDatasheet)
	missing.ProductID = nil
	lowConfidence := f.suggestion("b.pdf", model.MaterialSalesDeck)
	lowConfidence.Confidence = 0.6
	manual := f.suggestion("c.pdf", model.MaterialCaseStudy)
	manual.Confidence = 0

	result, err := exec.Run(context.Background(),
		[]model.File{file("a.pdf"), file("b.pdf"), file("c.pdf")},
		[]model.FileSuggestion{missing, lowConfidence, manual},
		0.7)
	require.NoError(t, err)

	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 2, result.FailureCount)
	assert.Contains(t, result.Failures[0].Detail, "product_id")
	assert.Contains(t, result.Failures[1].Detail, "below the threshold")

	uploads := f.backend.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "c.pdf", uploads[0].Filename)
	assert.Equal(t, 1, f.backend.DuplicateChecks())
}

func TestRunRerunDropsStaleProgress(t *testing.T) {
	f := newFixture(t)
	exec := NewExecutor(f.client)
	ok := f.suggestion("a.pdf", model.MaterialDatasheet)

	_, err := exec.Run(context.Background(), []model.File{file("a.pdf")}, []model.FileSuggestion{ok}, 0.7)
	require.NoError(t, err)
	first, found := exec.Tracker().Get("a.pdf")
	require.True(t, found)
	require.Equal(t, 100, first.Progress)

	missing := ok
	missing.ProductID = nil
	result, err := exec.Run(context.Background(), []model.File{file("a.pdf")}, []model.FileSuggestion{missing}, 0.7)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FailureCount)

	e, found := exec.Tracker().Get("a.pdf")
	require.True(t, found)
	assert.Equal(t, model.UploadError, e.Status)
	assert.Zero(t, e.Progress)
	assert.Contains(t, e.Error, "product_id")
	assert.Len(t, f.backend.Uploads(), 1)
}

func TestRunThresholdIsReadAtUploadTime(t *testing.T) {
	f := newFixture(t)
	exec := NewExecutor(f.client)
	s := f.suggestion("a.pdf", model.MaterialDatasheet)
	s.Confidence = 0.6

	result, err := exec.Run(context.Background(), []model.File{file("a.pdf")}, []model.FileSuggestion{s}, 0.9)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FailureCount)

	result, err = exec.Run(context.Background(), []model.File{file("a.pdf")}, []model.FileSuggestion{s}, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
}

func TestRunConflictPolicies(t *testing.T) {
	tests := []struct {
		decider      Decider
		name         string
		policy       config.ConflictPolicy
		wantSuccess  int
		wantStatus   string
		wantReplaced bool
	}{
		{name: "skip", policy: config.ConflictSkip, wantSuccess: 0, wantStatus: model.JournalSkipped},
		{name: "replace", policy: config.ConflictReplace, wantSuccess: 1, wantStatus: model.JournalReplaced, wantReplaced: true},
		{
			name:   "ask and confirm",
			policy: config.ConflictAsk,
			decider: deciderFunc(func(_ context.Context, snap replace.Snapshot) (bool, error) {
				return snap.State == replace.ConflictDetected && snap.Conflict != nil, nil
			}),
			wantSuccess: 1, wantStatus: model.JournalReplaced, wantReplaced: true,
		},
		{
			name:   "ask and decline",
			policy: config.ConflictAsk,
			decider: deciderFunc(func(context.Context, replace.Snapshot) (bool, error) {
				return false, nil
			}),
			wantSuccess: 0, wantStatus: model.JournalSkipped,
		},
		{name: "ask without decider", policy: config.ConflictAsk, wantSuccess: 0, wantStatus: model.JournalSkipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			old := f.backend.AddMaterial("old.pdf", f.product, model.MaterialDatasheet)
			journal := &memoryJournal{}
			var replacedHook int
			opts := []Option{
				WithChecker(duplicate.NewResolver(f.client)),
				WithPolicy(tt.policy),
				WithJournal(journal, "b"),
				WithOnReplaced(func(*model.Material) { replacedHook++ }),
			}
			if tt.decider != nil {
				opts = append(opts, WithDecider(tt.decider))
			}
			exec := NewExecutor(f.client, opts...)

			result, err := exec.Run(context.Background(),
				[]model.File{file("a.pdf")},
				[]model.FileSuggestion{f.suggestion("a.pdf", model.MaterialDatasheet)},
				0.5)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, result.SuccessCount)
			assert.Equal(t, 1, result.Total())
			require.Len(t, journal.entries, 1)
			assert.Equal(t, tt.wantStatus, journal.entries[0].Status)

			active := f.backend.ActiveMaterials()
			require.Len(t, active, 1)
			if tt.wantReplaced {
				assert.NotEqual(t, old.ID, active[0].ID)
				assert.Equal(t, 1, replacedHook)
				assert.Contains(t, result.Successes[0].Detail, "Replaced")
			} else {
				assert.Equal(t, old.ID, active[0].ID)
				assert.Contains(t, result.Failures[0].Detail, "old.pdf")
				assert.Zero(t, replacedHook)
			}
		})
	}
}

func TestRunUploadConflictWithoutPreflight(t *testing.T) {
	f := newFixture(t)
	f.backend.AddMaterial("old.pdf", f.product, model.MaterialDatasheet)
	exec := NewExecutor(f.client, WithPolicy(config.ConflictReplace))

	result, err := exec.Run(context.Background(),
		[]model.File{file("a.pdf"), file("b.pdf")},
		[]model.FileSuggestion{f.suggestion("a.pdf", model.MaterialDatasheet), f.suggestion("b.pdf", model.MaterialSalesDeck)},
		0.5)
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)

	uploads := f.backend.Uploads()
	require.Len(t, uploads, 3)
	assert.Equal(t, http.StatusConflict, uploads[0].Status)
	assert.Equal(t, "true", uploads[1].Fields["replace_existing"])
	assert.Empty(t, uploads[2].Fields["replace_existing"])
}

func TestRunAskRetriesFailedReplace(t *testing.T) {
	attempts := 0
	uploader := uploaderFunc(func(_ context.Context, req model.UploadRequest, _ api.ProgressFunc) (*model.Material, error) {
		attempts++
		if attempts < 3 {
			return nil, &api.ConflictError{Existing: model.MaterialSnapshot{ID: 1, Name: "old.pdf"}, Payload: &req}
		}
		return &model.Material{ID: 2}, nil
	})

	var prompts []replace.State
	exec := NewExecutor(uploader,
		WithPolicy(config.ConflictAsk),
		WithDecider(deciderFunc(func(_ context.Context, snap replace.Snapshot) (bool, error) {
			prompts = append(prompts, snap.State)
			return true, nil
		})))

	f := fixture{base: model.FileSuggestion{
		UniverseID: model.IntPtr(1), CategoryID: model.IntPtr(2), ProductID: model.IntPtr(3),
		MaterialType: model.MaterialDatasheet, Audience: model.AudienceBoth, Confidence: 0.9,
	}}
	result, err := exec.Run(context.Background(), []model.File{file("a.pdf")}, []model.FileSuggestion{f.suggestion("a.pdf", model.MaterialDatasheet)}, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, []replace.State{replace.ConflictDetected, replace.Failed}, prompts)
}

func TestRunCanceledRecordsRemainingFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	uploader := uploaderFunc(func(context.Context, model.UploadRequest, api.ProgressFunc) (*model.Material, error) {
		cancel()
		return &model.Material{ID: 1}, nil
	})
	exec := NewExecutor(uploader)
	s := model.FileSuggestion{
		UniverseID: model.IntPtr(1), CategoryID: model.IntPtr(2), ProductID: model.IntPtr(3),
		MaterialType: model.MaterialDatasheet, Audience: model.AudienceBoth,
	}

	result, err := exec.Run(ctx, []model.File{file("a.pdf"), file("b.pdf"), file("c.pdf")}, []model.FileSuggestion{s, s, s}, 0.5)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 2, result.FailureCount)
	assert.Equal(t, 3, result.Total())

	for _, name := range []string{"b.pdf", "c.pdf"} {
		e, found := exec.Tracker().Get(name)
		require.True(t, found)
		assert.Equal(t, model.UploadError, e.Status)
		assert.Zero(t, e.Progress)
		assert.Equal(t, "canceled", e.Error)
	}
}

func TestRunEndToEndScenario(t *testing.T) {
	f := newFixture(t)
	exec := NewExecutor(f.client, WithChecker(duplicate.NewResolver(f.client)))

	files := []model.File{
		model.NewMemoryFile("a.pdf", []byte("a"), 50<<20),
		model.NewMemoryFile("b.pdf", []byte("b"), 150<<20),
		model.NewMemoryFile("c.pdf", []byte("c"), 10<<20),
	}
	b := f.suggestion("b.pdf", model.MaterialSalesDeck)
	b.Confidence = model.ReviewedConfidence
	suggestions := []model.FileSuggestion{
		f.suggestion("a.pdf", model.MaterialDatasheet),
		b,
		f.suggestion("c.pdf", model.MaterialCaseStudy),
	}

	result, err := exec.Run(context.Background(), files, suggestions, 0.8)
	require.NoError(t, err)
	assert.Equal(t, 3, result.SuccessCount)
	assert.Zero(t, result.FailureCount)

	uploads := f.backend.Uploads()
	require.Len(t, uploads, 3)
	assert.Equal(t, "a.pdf", uploads[0].Filename)
	assert.Equal(t, "b.pdf", uploads[1].Filename)
	assert.Equal(t, "c.pdf", uploads[2].Filename)
}

type uploaderFunc func(ctx context.Context, req model.UploadRequest, progress api.ProgressFunc) (*model.Material, error)

func (f uploaderFunc) Upload(ctx context.Context, req model.UploadRequest, progress api.ProgressFunc) (*model.Material, error) {
	return f(ctx, req, progress)
}

func TestRunJournalsToSQLite(t *testing.T) {
	f := newFixture(t)
	f.backend.AddMaterial("old.pdf", f.product, model.MaterialSalesDeck)
	db := testutil.SetupTestDB(t)
	exec := NewExecutor(f.client,
		WithChecker(duplicate.NewResolver(f.client)),
		WithPolicy(config.ConflictSkip),
		WithJournal(db.Storage, "batch-sql"))

	files := []model.File{file("a.pdf"), file("b.pdf")}
	suggestions := []model.FileSuggestion{
		f.suggestion("a.pdf", model.MaterialDatasheet),
		f.suggestion("b.pdf", model.MaterialSalesDeck),
	}

	result, err := exec.Run(context.Background(), files, suggestions, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)

	entries := db.MustJournal("batch-sql")
	require.Len(t, entries, 2)
	assert.Equal(t, "a.pdf", entries[0].Filename)
	assert.Equal(t, model.JournalUploaded, entries[0].Status)
	assert.Equal(t, "Widget", entries[0].ProductName)
	assert.Equal(t, model.JournalSkipped, entries[1].Status)
	assert.Nil(t, entries[1].MaterialID)
}
