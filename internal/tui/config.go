package tui

import (
	"github.com/Veraticus/matflow/internal/tui/themes"
	tea "github.com/charmbracelet/bubbletea"
)

// Config holds dashboard settings.
type Config struct {
	Theme          themes.Theme
	ProgramOptions []tea.ProgramOption
	Title          string
	Width          int
	Height         int
}

// Option is a functional option for configuring the dashboard.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Theme:  themes.Default,
		Title:  "Uploading materials",
		Width:  80,
		Height: 24,
	}
}

// WithTheme sets the visual theme.
func WithTheme(theme themes.Theme) Option {
	return func(c *Config) {
		c.Theme = theme
	}
}

// WithTitle sets the heading.
func WithTitle(title string) Option {
	return func(c *Config) {
		c.Title = title
	}
}

// WithProgramOptions passes options to the bubbletea program.
func WithProgramOptions(opts ...tea.ProgramOption) Option {
	return func(c *Config) {
		c.ProgramOptions = append(c.ProgramOptions, opts...)
	}
}
