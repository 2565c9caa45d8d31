package tui

import (
	"context"
	"fmt"

	"github.com/Veraticus/matflow/internal/model"
	"github.com/Veraticus/matflow/internal/upload"
	tea "github.com/charmbracelet/bubbletea"
)

// RunFunc performs the uploads the dashboard watches.
type RunFunc func(ctx context.Context) (model.BatchResult, error)

type runOutcome struct {
	err    error
	result model.BatchResult
}

// RunUploads shows the dashboard while run executes. tracker must be the
// tracker run reports progress to. Quitting the dashboard cancels run and
// waits for it to return, so the result always accounts for every file.
func RunUploads(ctx context.Context, files []model.File, tracker *upload.Tracker, run RunFunc, opts ...Option) (model.BatchResult, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(newModel(cfg, files, cancel), cfg.ProgramOptions...)
	tracker.Subscribe(func(e model.UploadProgressEntry) {
		program.Send(progressMsg{entry: e})
	})

	outcomes := make(chan runOutcome, 1)
	go func() {
		result, err := run(ctx)
		outcomes <- runOutcome{result: result, err: err}
		program.Send(doneMsg{result: result, err: err})
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		out := <-outcomes
		return out.result, fmt.Errorf("dashboard failed: %w", err)
	}

	out := <-outcomes
	return out.result, out.err
}
