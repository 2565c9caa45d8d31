package tui

import (
	"fmt"
	"strings"

	"github.com/Veraticus/matflow/internal/model"
	"github.com/charmbracelet/lipgloss"
)

const nameWidth = 28

// View renders the dashboard.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.theme.Title.Render(m.title))
	b.WriteString("\n")

	for i, r := range m.rows {
		b.WriteString(m.renderRow(i, r))
		b.WriteString("\n")
	}

	if m.cursor >= 0 && m.cursor < len(m.rows) && m.rows[m.cursor].err != "" {
		b.WriteString("\n")
		b.WriteString(m.theme.StatusError.Render(m.rows[m.cursor].filename + ": " + m.rows[m.cursor].err))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderRow(i int, r row) string {
	pointer := "  "
	if i == m.cursor {
		pointer = m.theme.Selected.Render("> ")
	}

	name := truncate(r.filename, nameWidth)
	name += strings.Repeat(" ", nameWidth-lipgloss.Width(name))

	var status string
	switch r.status {
	case model.UploadUploading:
		status = m.theme.StatusActive.Render(fmt.Sprintf("%3d%%", r.percent))
	case model.UploadSuccess:
		status = m.theme.StatusSuccess.Render("done")
	case model.UploadError:
		status = m.theme.StatusError.Render("failed")
	default:
		status = m.theme.StatusPending.Render("waiting")
	}

	return pointer + name + " " + m.bar.ViewAs(float64(r.percent)/100) + " " + status
}

func (m Model) renderFooter() string {
	finished, succeeded, failed := m.counts()
	summary := fmt.Sprintf("%d/%d finished  %d uploaded  %d failed", finished, len(m.rows), succeeded, failed)

	var state string
	switch {
	case m.done:
		state = "Complete"
	case m.cancelling:
		state = "Cancelling, unfinished files will be recorded as failed..."
	}

	lines := []string{m.theme.Subtitle.Render(summary)}
	if state != "" {
		lines = append(lines, m.theme.Normal.Render(state))
	}
	lines = append(lines, m.theme.Muted.Render(m.help.View(m.keymap)))
	return strings.Join(lines, "\n")
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
