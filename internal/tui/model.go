// Package tui shows a live dashboard with one progress bar per file while a
// batch uploads.
package tui

import (
	"context"

	"github.com/Veraticus/matflow/internal/model"
	"github.com/Veraticus/matflow/internal/tui/themes"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

// row is the dashboard's view of one file. An empty status means the file
// has not started yet.
type row struct {
	filename string
	status   model.UploadStatus
	err      string
	percent  int
}

// Model holds the dashboard state.
type Model struct {
	theme      themes.Theme
	err        error
	cancel     context.CancelFunc
	index      map[string]int
	help       help.Model
	keymap     KeyMap
	title      string
	rows       []row
	result     model.BatchResult
	bar        progress.Model
	width      int
	height     int
	cursor     int
	done       bool
	cancelling bool
	showHelp   bool
}

func newModel(cfg Config, files []model.File, cancel context.CancelFunc) Model {
	m := Model{
		theme:  cfg.Theme,
		keymap: DefaultKeyMap(),
		help:   help.New(),
		title:  cfg.Title,
		cancel: cancel,
		index:  make(map[string]int, len(files)),
		rows:   make([]row, 0, len(files)),
		bar: progress.New(
			progress.WithGradient(cfg.Theme.GradientStart, cfg.Theme.GradientEnd),
			progress.WithoutPercentage(),
		),
	}
	for _, f := range files {
		m.addRow(f.Name)
	}
	m.resize(cfg.Width, cfg.Height)
	return m
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case progressMsg:
		m.apply(msg.entry)

	case doneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.ForceQuit):
		m.requestCancel()
		return m, tea.Quit
	case key.Matches(msg, m.keymap.Cancel):
		if m.done {
			return m, tea.Quit
		}
		m.requestCancel()
	case key.Matches(msg, m.keymap.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keymap.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keymap.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
	}
	return m, nil
}

func (m *Model) requestCancel() {
	if m.cancelling {
		return
	}
	m.cancelling = true
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width
	m.bar.Width = max(10, min(40, width-50))
}

func (m *Model) addRow(filename string) int {
	if i, ok := m.index[filename]; ok {
		return i
	}
	m.rows = append(m.rows, row{filename: filename})
	m.index[filename] = len(m.rows) - 1
	return len(m.rows) - 1
}

func (m *Model) apply(e model.UploadProgressEntry) {
	r := &m.rows[m.addRow(e.Filename)]
	r.status = e.Status
	r.percent = e.Progress
	r.err = e.Error
	if e.Status == model.UploadUploading {
		m.cursor = m.index[e.Filename]
	}
}

// counts returns finished, succeeded and failed row counts.
func (m Model) counts() (finished, succeeded, failed int) {
	for _, r := range m.rows {
		switch r.status {
		case model.UploadSuccess:
			succeeded++
		case model.UploadError:
			failed++
		}
	}
	return succeeded + failed, succeeded, failed
}
