// Package themes holds the color schemes of the upload dashboard.
package themes

import "github.com/charmbracelet/lipgloss"

// Theme defines the visual style for the TUI.
type Theme struct {
	Title         lipgloss.Style
	Subtitle      lipgloss.Style
	Normal        lipgloss.Style
	Muted         lipgloss.Style
	Selected      lipgloss.Style
	StatusPending lipgloss.Style
	StatusActive  lipgloss.Style
	StatusError   lipgloss.Style
	StatusSuccess lipgloss.Style
	Box           lipgloss.Style
	GradientStart string
	GradientEnd   string
}

// Default is the default theme.
var Default = Theme{
	Title: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#fafafa")).
		MarginBottom(1),
	Subtitle: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#a3a3a3")),
	Normal: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#fafafa")),
	Muted: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#737373")),
	Selected: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#a78bfa")).
		Bold(true),
	StatusPending: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#737373")),
	StatusActive: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#3b82f6")),
	StatusError: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#ef4444")),
	StatusSuccess: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10b981")),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#404040")).
		Padding(0, 1),
	GradientStart: "#7c3aed",
	GradientEnd:   "#10b981",
}

// Plain has no colors, for dumb terminals and tests.
var Plain = Theme{
	Title:         lipgloss.NewStyle().Bold(true).MarginBottom(1),
	Subtitle:      lipgloss.NewStyle(),
	Normal:        lipgloss.NewStyle(),
	Muted:         lipgloss.NewStyle(),
	Selected:      lipgloss.NewStyle().Bold(true),
	StatusPending: lipgloss.NewStyle(),
	StatusActive:  lipgloss.NewStyle(),
	StatusError:   lipgloss.NewStyle(),
	StatusSuccess: lipgloss.NewStyle(),
	Box:           lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1),
	GradientStart: "#ffffff",
	GradientEnd:   "#ffffff",
}
