package ui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#8B5CF6")
	textPrimary  = lipgloss.Color("#F8FAFC")
	textMuted    = lipgloss.Color("#64748B")
	dirtyColor   = lipgloss.Color("#F59E0B")
	lockedColor  = lipgloss.Color("#38BDF8")

	titleStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 1)

	statsStyle = lipgloss.NewStyle().
			Foreground(textPrimary).
			MarginTop(1)

	mutedStyle = lipgloss.NewStyle().
			Foreground(textMuted)

	dirtyStyle = lipgloss.NewStyle().
			Foreground(dirtyColor)

	lockedStyle = lipgloss.NewStyle().
			Foreground(lockedColor)
)
