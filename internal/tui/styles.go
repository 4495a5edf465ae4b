package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/fleet/internal/status"
)

// Border styles
var (
	StyleFocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62"))

	StyleUnfocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))
)

// State styles
var (
	StyleStateRunning = lipgloss.NewStyle().
				Foreground(lipgloss.Color("11")).
				Bold(true)

	StyleStateDone = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true)

	StyleStateFailed = lipgloss.NewStyle().
				Foreground(lipgloss.Color("9")).
				Bold(true)

	StyleStateBlocked = lipgloss.NewStyle().
				Foreground(lipgloss.Color("13")).
				Bold(true)

	StyleStateIdle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// UI element styles
var (
	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	StyleHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	StyleHint = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true)

	StyleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))
)

// StateStyle returns the style a worker state is rendered in.
func StateStyle(s status.State) lipgloss.Style {
	switch s {
	case status.StateRunning:
		return StyleStateRunning
	case status.StateDone:
		return StyleStateDone
	case status.StateFailed:
		return StyleStateFailed
	case status.StateBlocked:
		return StyleStateBlocked
	default:
		return StyleStateIdle
	}
}
