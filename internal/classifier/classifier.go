// Package classifier turns selected files into classification suggestions.
// Files are analyzed one at a time; any per-file failure becomes a
// placeholder suggestion so the batch always yields one row per file.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/matflow/internal/common"
	"github.com/Veraticus/matflow/internal/model"
	"github.com/Veraticus/matflow/internal/resilience"
)

const (
	// DefaultMaxBytes is the largest file sent for analysis.
	DefaultMaxBytes int64 = 100 << 20
	// DefaultTimeout bounds one file's analysis.
	DefaultTimeout = 2 * time.Minute
)

// Outcome labels reported to an Observer.
const (
	OutcomeAnalyzed    = "analyzed"
	OutcomeTooLarge    = "too_large"
	OutcomeUnsupported = "unsupported"
	OutcomeFailed      = "failed"
)

var supportedExtensions = map[string]bool{
	"pdf": true, "ppt": true, "pptx": true, "doc": true, "docx": true,
	"xls": true, "xlsx": true, "png": true, "jpg": true, "jpeg": true,
	"txt": true, "md": true, "csv": true,
}

// Analyzer submits one file to the classification endpoint.
type Analyzer interface {
	AnalyzeFile(ctx context.Context, file model.File) (model.FileSuggestion, error)
}

// Observer receives one call per classified file.
type Observer interface {
	ObserveClassification(outcome string, elapsed time.Duration)
}

// ProgressFunc reports "file current of total" before each file starts.
type ProgressFunc func(current, total int)

// Defaults are the material type and audience used for manual rows.
type Defaults struct {
	MaterialType model.MaterialType
	Audience     model.Audience
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithMaxBytes sets the size gate.
func WithMaxBytes(n int64) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// WithTimeout sets the per-file deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithExecutor routes analyze calls through a resilience executor.
func WithExecutor(exec *resilience.Executor) Option {
	return func(c *Classifier) {
		c.exec = exec
	}
}

// WithObserver reports per-file outcomes.
func WithObserver(o Observer) Option {
	return func(c *Classifier) {
		c.observer = o
	}
}

// Classifier classifies files through an Analyzer.
type Classifier struct {
	analyzer Analyzer
	exec     *resilience.Executor
	observer Observer
	maxBytes int64
	timeout  time.Duration
}

// New creates a classifier.
func New(analyzer Analyzer, opts ...Option) *Classifier {
	c := &Classifier{
		analyzer: analyzer,
		maxBytes: DefaultMaxBytes,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns one suggestion per file, in input order. It fails only
// when there is nothing to return; individual failures become placeholders.
// Cancelling ctx stops the loop and returns ctx's error.
func (c *Classifier) Classify(ctx context.Context, files []model.File, onProgress ProgressFunc) ([]model.FileSuggestion, error) {
	if len(files) == 0 {
		return nil, common.ErrNoFiles
	}

	results := make([]model.FileSuggestion, 0, len(files))
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if onProgress != nil {
			onProgress(i+1, len(files))
		}

		start := time.Now()
		suggestion, outcome := c.classifyOne(ctx, file)
		if c.observer != nil {
			c.observer.ObserveClassification(outcome, time.Since(start))
		}
		results = append(results, suggestion)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, common.ErrNoSuggestions
	}
	return results, nil
}

func (c *Classifier) classifyOne(ctx context.Context, file model.File) (model.FileSuggestion, string) {
	if file.Size > c.maxBytes {
		slog.Info("Skipping analysis of oversized file", "file", file.Name, "size", file.Size, "limit", c.maxBytes)
		return Placeholder(file.Name, fmt.Sprintf("File too large for AI analysis (%s, limit %s). Please fill in manually.",
			formatBytes(file.Size), formatBytes(c.maxBytes))), OutcomeTooLarge
	}
	if !supportedExtensions[file.Extension()] {
		slog.Info("Skipping analysis of unsupported file", "file", file.Name)
		return Placeholder(file.Name, "Unsupported file format for AI analysis. Please fill in manually."), OutcomeUnsupported
	}

	fileCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var suggestion model.FileSuggestion
	analyze := func(ctx context.Context) error {
		s, err := c.analyzer.AnalyzeFile(ctx, file)
		if err != nil {
			return err
		}
		suggestion = s
		return nil
	}

	var err error
	if c.exec != nil {
		err = c.exec.Execute(fileCtx, "analyze", analyze, nil)
	} else {
		err = analyze(fileCtx)
	}
	if err != nil {
		slog.Warn("Analysis failed", "file", file.Name, "error", err)
		return Placeholder(file.Name, failureReason(ctx, err)), OutcomeFailed
	}

	suggestion.Filename = file.Name
	return suggestion, OutcomeAnalyzed
}

func failureReason(parent context.Context, err error) string {
	switch {
	case parent.Err() == nil && errors.Is(err, context.DeadlineExceeded):
		return "AI analysis timed out. Please fill in manually."
	case errors.Is(err, common.ErrPayloadTooLarge):
		return "File rejected as too large by the analysis service. Please fill in manually."
	case resilience.IsCircuitOpen(err):
		return "Analysis service is unavailable. Please fill in manually."
	default:
		return fmt.Sprintf("AI analysis failed: %v. Please fill in manually.", err)
	}
}

// Placeholder returns the suggestion used when a file could not be
// analyzed.
func Placeholder(filename, reasoning string) model.FileSuggestion {
	return model.FileSuggestion{
		Filename:   filename,
		Reasoning:  reasoning,
		Confidence: model.ManualConfidence,
	}
}

// SkipAI builds manual suggestions for files without calling the backend.
func SkipAI(files []model.File, defaults Defaults) []model.FileSuggestion {
	out := make([]model.FileSuggestion, len(files))
	for i, file := range files {
		out[i] = model.FileSuggestion{
			Filename:     file.Name,
			MaterialType: defaults.MaterialType,
			Audience:     defaults.Audience,
			Reasoning:    model.ManualReasoning,
			Confidence:   model.ManualConfidence,
		}
	}
	return out
}

func formatBytes(n int64) string {
	const mb = 1 << 20
	if n >= mb {
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}
