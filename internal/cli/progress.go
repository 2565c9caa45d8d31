package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Veraticus/matflow/internal/api"
	"github.com/Veraticus/matflow/internal/classifier"
	"github.com/Veraticus/matflow/internal/model"
	"github.com/Veraticus/matflow/internal/upload"
	"github.com/schollz/progressbar/v3"
)

func newBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(w); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

// ClassifyProgress returns a progress callback that draws a bar of files
// analyzed so far.
func ClassifyProgress(w io.Writer) classifier.ProgressFunc {
	var (
		bar *progressbar.ProgressBar
		mu  sync.Mutex
	)
	return func(current, total int) {
		mu.Lock()
		defer mu.Unlock()
		if bar == nil {
			bar = newBar(w, total, "[cyan][bold]Analyzing files...[reset]")
		}
		if err := bar.Set(current); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}
}

// UploadProgress draws a bar of finished files and names the file in
// flight with its percentage. It returns a function that stops drawing.
func UploadProgress(w io.Writer, tracker *upload.Tracker, total int) func() {
	bar := newBar(w, total, "[cyan][bold]Uploading...[reset]")
	finished := make(map[string]bool)
	stopped := false
	var mu sync.Mutex

	tracker.Subscribe(func(e model.UploadProgressEntry) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}

		switch e.Status {
		case model.UploadUploading:
			// A retried file counts again once it finishes.
			delete(finished, e.Filename)
			bar.Describe(fmt.Sprintf("[cyan][bold]%s[reset] %3d%%", e.Filename, e.Progress))
		case model.UploadSuccess, model.UploadError:
			if finished[e.Filename] {
				return
			}
			finished[e.Filename] = true
			if err := bar.Set(min(len(finished), total)); err != nil {
				slog.Warn("Failed to update progress bar", "error", err)
			}
		}
	})

	return func() {
		mu.Lock()
		defer mu.Unlock()
		stopped = true
		if err := bar.Finish(); err != nil {
			slog.Warn("Failed to finish progress bar", "error", err)
		}
	}
}

// ByteProgress returns an upload callback that draws a byte-count bar for
// a single file. A retried upload restarts the bar.
func ByteProgress(w io.Writer, description string) api.ProgressFunc {
	var (
		bar *progressbar.ProgressBar
		mu  sync.Mutex
	)
	return func(sent, total int64) {
		mu.Lock()
		defer mu.Unlock()
		if bar == nil {
			bar = progressbar.NewOptions64(total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionShowBytes(true),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription(description),
				progressbar.OptionOnCompletion(func() {
					_, _ = fmt.Fprintln(w)
				}),
			)
		}
		if err := bar.Set64(sent); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}
}
