// Package engine owns one ingestion session: the selected files, their
// suggestions, and the upload of the batch.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Veraticus/matflow/internal/classifier"
	"github.com/Veraticus/matflow/internal/common"
	"github.com/Veraticus/matflow/internal/model"
	"github.com/Veraticus/matflow/internal/reconcile"
	"github.com/google/uuid"
)

// Config holds session settings.
type Config struct {
	// ID names the batch; a random one is generated when empty.
	ID        string
	Defaults  classifier.Defaults
	Threshold float64
}

// Session is one batch from file selection to upload. Closing it cancels
// every request it started; results arriving afterwards are dropped.
type Session struct {
	ctx        context.Context
	classifier Classifier
	runner     Runner
	hierarchy  *reconcile.Hierarchy
	store      *reconcile.Store
	cancel     context.CancelFunc
	lastResult *model.BatchResult
	id         string
	files      []model.File
	cfg        Config
	mu         sync.Mutex
	closed     bool
}

// NewSession starts a session bound to parent.
func NewSession(parent context.Context, cls Classifier, runner Runner, hierarchy *reconcile.Hierarchy, cfg Config) *Session {
	ctx, cancel := context.WithCancel(parent)
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		ctx:        ctx,
		cancel:     cancel,
		id:         id,
		classifier: cls,
		runner:     runner,
		hierarchy:  hierarchy,
		store:      reconcile.NewStore(hierarchy),
		cfg:        cfg,
	}
}

// ID returns the session's batch id.
func (s *Session) ID() string {
	return s.id
}

// Context returns the session context.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Store returns the suggestion store.
func (s *Session) Store() *reconcile.Store {
	return s.store
}

// Threshold returns the current auto-apply threshold.
func (s *Session) Threshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Threshold
}

// SetThreshold changes the threshold. It applies to the next Upload even
// after review.
func (s *Session) SetThreshold(t float64) error {
	if err := reconcile.ValidateThreshold(t); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Threshold = t
	return nil
}

// AddFiles appends files to the selection and clears any suggestions,
// which no longer line up with the files.
func (s *Session) AddFiles(files ...model.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return common.ErrSessionClosed
	}
	s.files = append(s.files, files...)
	s.store.Reset()
	return nil
}

// Files returns the selected files.
func (s *Session) Files() []model.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.File(nil), s.files...)
}

// RemoveFile drops file i together with its suggestion.
func (s *Session) RemoveFile(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return common.ErrSessionClosed
	}
	if i < 0 || i >= len(s.files) {
		return fmt.Errorf("%w: %d", reconcile.ErrIndexOutOfRange, i)
	}
	if s.store.Len() == len(s.files) {
		if err := s.store.Remove(i); err != nil {
			return err
		}
	}
	s.files = append(s.files[:i], s.files[i+1:]...)
	return nil
}

// Analyze classifies every selected file and loads the suggestions.
func (s *Session) Analyze(onProgress classifier.ProgressFunc) error {
	files := s.Files()
	if len(files) == 0 {
		return common.ErrNoFiles
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	slog.Info("Analyzing files", "session", s.id, "count", len(files))
	suggestions, err := s.classifier.Classify(s.ctx, files, onProgress)
	if err != nil {
		if s.ctx.Err() != nil {
			return common.ErrSessionClosed
		}
		return fmt.Errorf("classification failed: %w", err)
	}

	if s.hierarchy != nil {
		s.hierarchy.Warm(s.ctx, suggestions)
	}
	return s.load(suggestions)
}

// SkipAI loads manual suggestions built from the session defaults.
func (s *Session) SkipAI() error {
	files := s.Files()
	if len(files) == 0 {
		return common.ErrNoFiles
	}
	return s.load(classifier.SkipAI(files, s.cfg.Defaults))
}

// Prefill loads externally prepared suggestions, one per file.
func (s *Session) Prefill(suggestions []model.FileSuggestion) error {
	if len(suggestions) != len(s.Files()) {
		return fmt.Errorf("%w: %d files, %d suggestions", common.ErrMisaligned, len(s.Files()), len(suggestions))
	}
	if s.hierarchy != nil {
		s.hierarchy.Warm(s.ctx, suggestions)
	}
	return s.load(suggestions)
}

func (s *Session) load(suggestions []model.FileSuggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return common.ErrSessionClosed
	}
	if len(suggestions) != len(s.files) {
		return fmt.Errorf("%w: %d files, %d suggestions", common.ErrMisaligned, len(s.files), len(suggestions))
	}
	s.store.Load(suggestions)
	return nil
}

// Review hands the suggestions to r for editing. r may change the
// session's threshold.
func (s *Session) Review(r Reviewer) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return r.Review(s.ctx, s.Files(), s.store, s.hierarchy, s)
}

// Upload runs the batch. A run without failures resets the session so it
// can take a new selection; otherwise files and suggestions are kept for
// inspection and retry.
func (s *Session) Upload() (model.BatchResult, error) {
	return s.upload(s.ctx)
}

// UploadContext is Upload with an extra cancellation source, such as a
// dashboard the operator can quit.
func (s *Session) UploadContext(ctx context.Context) (model.BatchResult, error) {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return s.upload(runCtx)
}

func (s *Session) upload(ctx context.Context) (model.BatchResult, error) {
	if err := s.checkOpen(); err != nil {
		return model.BatchResult{}, err
	}

	files := s.Files()
	suggestions := s.store.Suggestions()
	threshold := s.Threshold()

	slog.Info("Uploading batch", "session", s.id, "files", len(files), "threshold", threshold)
	result, err := s.runner.Run(ctx, files, suggestions, threshold)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return result, common.ErrSessionClosed
	}
	s.lastResult = &result
	s.mu.Unlock()

	if err != nil {
		return result, err
	}

	slog.Info("Batch finished", "session", s.id, "succeeded", result.SuccessCount, "failed", result.FailureCount)
	if result.FailureCount == 0 {
		s.Reset()
	}
	return result, nil
}

// LastResult returns the result of the most recent Upload.
func (s *Session) LastResult() (model.BatchResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastResult == nil {
		return model.BatchResult{}, false
	}
	return *s.lastResult, true
}

// Reset clears files, suggestions, and progress.
func (s *Session) Reset() {
	s.mu.Lock()
	s.files = nil
	s.mu.Unlock()

	s.store.Reset()
	if s.runner != nil {
		s.runner.Tracker().Reset()
	}
}

// Close cancels in-flight work. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return common.ErrSessionClosed
	}
	return nil
}
