// Package upload runs a reviewed batch against the backend, one file at a
// time, isolating per-file failures.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/matflow/internal/api"
	"github.com/Veraticus/matflow/internal/common"
	"github.com/Veraticus/matflow/internal/config"
	"github.com/Veraticus/matflow/internal/model"
	"github.com/Veraticus/matflow/internal/reconcile"
	"github.com/Veraticus/matflow/internal/replace"
)

// Outcome labels reported to an Observer.
const (
	OutcomeUploaded = "uploaded"
	OutcomeReplaced = "replaced"
	OutcomeSkipped  = "skipped"
	OutcomeInvalid  = "invalid"
	OutcomeFailed   = "failed"
)

// ErrConflictSkipped is recorded when an existing material is kept.
var ErrConflictSkipped = errors.New("material already exists")

// Uploader sends one upload request.
type Uploader interface {
	Upload(ctx context.Context, req model.UploadRequest, progress api.ProgressFunc) (*model.Material, error)
}

// Decider answers replace prompts for the "ask" conflict policy. It sees
// the conflict and, after a failed attempt, the failure message.
type Decider interface {
	ConfirmReplace(ctx context.Context, snap replace.Snapshot) (bool, error)
}

// Journal persists per-file outcomes.
type Journal interface {
	RecordUpload(ctx context.Context, entry model.JournalEntry) error
}

// Observer receives one call per file outcome.
type Observer interface {
	ObserveUpload(outcome string, bytes int64, elapsed time.Duration)
}

// Option configures an Executor.
type Option func(*Executor)

// WithChecker enables the pre-flight duplicate check.
func WithChecker(c replace.DuplicateChecker) Option {
	return func(e *Executor) { e.checker = c }
}

// WithPolicy sets how conflicts are resolved.
func WithPolicy(p config.ConflictPolicy) Option {
	return func(e *Executor) { e.policy = p }
}

// WithDecider sets the prompt used by the "ask" policy.
func WithDecider(d Decider) Option {
	return func(e *Executor) { e.decider = d }
}

// WithJournal records outcomes.
func WithJournal(j Journal, batchID string) Option {
	return func(e *Executor) {
		e.journal = j
		e.batchID = batchID
	}
}

// WithObserver reports outcomes.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// WithTracker uses t for progress instead of a private tracker.
func WithTracker(t *Tracker) Option {
	return func(e *Executor) { e.tracker = t }
}

// WithOnReplaced runs fn after every successful replace.
func WithOnReplaced(fn func(*model.Material)) Option {
	return func(e *Executor) { e.onReplaced = fn }
}

// Executor uploads batches.
type Executor struct {
	uploader   Uploader
	checker    replace.DuplicateChecker
	decider    Decider
	journal    Journal
	observer   Observer
	tracker    *Tracker
	onReplaced func(*model.Material)
	policy     config.ConflictPolicy
	batchID    string
}

// NewExecutor creates an executor. The default conflict policy is skip.
func NewExecutor(uploader Uploader, opts ...Option) *Executor {
	e := &Executor{
		uploader: uploader,
		policy:   config.ConflictSkip,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracker == nil {
		e.tracker = NewTracker()
	}
	return e
}

// Tracker returns the progress tracker.
func (e *Executor) Tracker() *Tracker {
	return e.tracker
}

// Run uploads files[i] with suggestions[i], in order. Per-file problems
// become failures and the loop moves on; only misaligned or empty input
// and cancellation end it early. On cancellation every file not yet
// finished is recorded as a failure.
func (e *Executor) Run(ctx context.Context, files []model.File, suggestions []model.FileSuggestion, threshold float64) (model.BatchResult, error) {
	var result model.BatchResult

	if len(files) != len(suggestions) {
		return result, fmt.Errorf("%w: %d files, %d suggestions", common.ErrMisaligned, len(files), len(suggestions))
	}
	if len(files) == 0 {
		return result, common.ErrNoFiles
	}

	machineOpts := []replace.Option{}
	if e.checker != nil {
		machineOpts = append(machineOpts, replace.WithChecker(e.checker))
	}
	if e.onReplaced != nil {
		machineOpts = append(machineOpts, replace.WithOnReplaced(e.onReplaced))
	}
	machine := replace.New(e.uploader, machineOpts...)

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			for _, rest := range files[i:] {
				e.tracker.Reject(rest.Name, "canceled")
				result.AddFailure(rest.Name, "Upload canceled")
			}
			return result, err
		}

		start := time.Now()
		outcome := e.uploadOne(ctx, machine, file, suggestions[i], threshold)

		if outcome.err != nil {
			detail := outcome.detail
			if detail == "" {
				detail = outcome.err.Error()
			}
			if outcome.kind == OutcomeInvalid {
				e.tracker.Reject(file.Name, detail)
			} else {
				e.tracker.Fail(file.Name, detail)
			}
			result.AddFailure(file.Name, detail)
			slog.Warn("Upload failed", "file", file.Name, "outcome", outcome.kind, "error", outcome.err)
		} else {
			e.tracker.Succeed(file.Name)
			result.AddSuccess(file.Name, outcome.detail)
			slog.Info("Uploaded file", "file", file.Name, "material_id", outcome.material.ID, "outcome", outcome.kind)
		}

		if e.observer != nil {
			e.observer.ObserveUpload(outcome.kind, file.Size, time.Since(start))
		}
		e.record(ctx, file, suggestions[i], outcome)
	}

	return result, nil
}

type fileOutcome struct {
	err      error
	material *model.Material
	kind     string
	detail   string
}

func (e *Executor) uploadOne(ctx context.Context, machine *replace.Machine, file model.File, s model.FileSuggestion, threshold float64) fileOutcome {
	if missing := s.MissingFields(); len(missing) > 0 {
		return fileOutcome{
			kind:   OutcomeInvalid,
			err:    fmt.Errorf("%w: %s", common.ErrMissingFields, strings.Join(missing, ", ")),
			detail: "Missing required fields: " + strings.Join(missing, ", "),
		}
	}
	if !reconcile.IsReady(s, threshold) {
		return fileOutcome{
			kind:   OutcomeInvalid,
			err:    common.ErrBelowThreshold,
			detail: fmt.Sprintf("Confidence %.2f is below the threshold %.2f", s.Confidence, threshold),
		}
	}

	req := model.NewUploadRequest(file, s)
	progress := e.progressFor(file.Name)

	e.tracker.Start(file.Name)
	material, err := machine.Submit(ctx, req, progress)
	if errors.Is(err, replace.ErrConflictDetected) {
		return e.resolveConflict(ctx, machine, file.Name, progress)
	}
	if err != nil {
		return fileOutcome{kind: OutcomeFailed, err: err, detail: describe(err)}
	}
	return fileOutcome{
		kind:     OutcomeUploaded,
		material: material,
		detail:   fmt.Sprintf("Uploaded as material #%d", material.ID),
	}
}

func (e *Executor) resolveConflict(ctx context.Context, machine *replace.Machine, filename string, progress api.ProgressFunc) fileOutcome {
	snap := machine.Snapshot()
	existing := snap.Conflict.ExistingMaterial
	skipped := fileOutcome{
		kind:   OutcomeSkipped,
		err:    ErrConflictSkipped,
		detail: fmt.Sprintf("Already exists as %q (material #%d); skipped", existing.Name, existing.ID),
	}

	switch e.policy {
	case config.ConflictReplace:
		e.tracker.Start(filename)
		material, err := machine.Confirm(ctx, progress)
		if err != nil {
			machine.Cancel()
			return fileOutcome{kind: OutcomeFailed, err: err, detail: describe(err)}
		}
		return replaced(material, existing)

	case config.ConflictAsk:
		if e.decider == nil {
			machine.Cancel()
			return skipped
		}
		for {
			ok, err := e.decider.ConfirmReplace(ctx, machine.Snapshot())
			if err != nil {
				machine.Cancel()
				return fileOutcome{kind: OutcomeFailed, err: err, detail: describe(err)}
			}
			if !ok {
				machine.Cancel()
				return skipped
			}

			e.tracker.Start(filename)
			material, err := machine.Confirm(ctx, progress)
			if err == nil {
				return replaced(material, existing)
			}
			if ctx.Err() != nil || machine.State() != replace.Failed {
				machine.Cancel()
				return fileOutcome{kind: OutcomeFailed, err: err, detail: describe(err)}
			}
		}

	default:
		machine.Cancel()
		return skipped
	}
}

func replaced(material *model.Material, existing model.MaterialSnapshot) fileOutcome {
	return fileOutcome{
		kind:     OutcomeReplaced,
		material: material,
		detail:   fmt.Sprintf("Replaced material #%d with #%d", existing.ID, material.ID),
	}
}

func (e *Executor) progressFor(filename string) api.ProgressFunc {
	return func(sent, total int64) {
		e.tracker.Update(filename, percentOf(sent, total))
	}
}

func (e *Executor) record(ctx context.Context, file model.File, s model.FileSuggestion, outcome fileOutcome) {
	if e.journal == nil {
		return
	}

	entry := model.JournalEntry{
		BatchID:      e.batchID,
		Filename:     file.Name,
		ProductName:  s.ProductName,
		MaterialType: s.MaterialType,
		Detail:       outcome.detail,
		CreatedAt:    time.Now().UTC(),
	}
	switch outcome.kind {
	case OutcomeUploaded:
		entry.Status = model.JournalUploaded
	case OutcomeReplaced:
		entry.Status = model.JournalReplaced
	case OutcomeSkipped:
		entry.Status = model.JournalSkipped
	default:
		entry.Status = model.JournalFailed
	}
	if outcome.material != nil {
		entry.MaterialID = model.IntPtr(outcome.material.ID)
	}

	// Outcomes are journaled even after cancellation.
	if err := e.journal.RecordUpload(context.WithoutCancel(ctx), entry); err != nil {
		slog.Warn("Failed to journal upload", "file", file.Name, "error", err)
	}
}

// describe turns an upload error into an operator-facing line.
func describe(err error) string {
	switch {
	case errors.Is(err, replace.ErrReplaceFailed):
		return "Replace failed: the existing material could not be overwritten"
	case errors.Is(err, common.ErrPayloadTooLarge):
		return "File too large for upload"
	case errors.Is(err, common.ErrUnauthorized):
		return "Not authorized; log in again"
	case errors.Is(err, context.Canceled):
		return "Upload canceled"
	default:
		return err.Error()
	}
}
