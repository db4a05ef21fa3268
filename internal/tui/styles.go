// Package tui is the interactive demo host for crash capture: a bubbletea
// program that runs as the supervised primary loop and shows faults, dumps
// and notifications as they happen.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/diagnostics"
)

// Color palette
var (
	ColorPrimary   = lipgloss.Color("#7C3AED") // Purple
	ColorSecondary = lipgloss.Color("#06B6D4") // Cyan

	ColorSuccess = lipgloss.Color("#10B981") // Green
	ColorWarning = lipgloss.Color("#F59E0B") // Amber
	ColorError   = lipgloss.Color("#EF4444") // Red
	ColorInfo    = lipgloss.Color("#3B82F6") // Blue

	ColorText       = lipgloss.Color("#E5E7EB")
	ColorTextMuted  = lipgloss.Color("#9CA3AF")
	ColorBorder     = lipgloss.Color("#374151")
	ColorBackground = lipgloss.Color("#1F2937")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Background(ColorBackground).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Italic(true)

	HeartbeatStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	// LogBoxStyle frames the event viewport.
	LogBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	// ToastStyle renders a short notification.
	ToastStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(ColorBorder).
			Padding(0, 2)

	// ToastLongStyle renders a long notification, used for raw debug messages.
	ToastLongStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(ColorError).
			Bold(true).
			Padding(0, 2)

	ErrorLineStyle = lipgloss.NewStyle().Foreground(ColorError)
	WarnLineStyle  = lipgloss.NewStyle().Foreground(ColorWarning)
	InfoLineStyle  = lipgloss.NewStyle().Foreground(ColorInfo)
	OKLineStyle    = lipgloss.NewStyle().Foreground(ColorSuccess)
)

// stateBadge renders a loop state as a colored badge.
func stateBadge(s diagnostics.LoopState) string {
	bg := ColorTextMuted
	switch s {
	case diagnostics.StateRunning:
		bg = ColorSuccess
	case diagnostics.StateFaulted:
		bg = ColorError
	}
	return lipgloss.NewStyle().
		Background(bg).
		Foreground(lipgloss.Color("#FFFFFF")).
		Padding(0, 1).
		Bold(true).
		Render(s.String())
}
