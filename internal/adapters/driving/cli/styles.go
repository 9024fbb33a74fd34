package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
)

// Palette shared by all command output.
var (
	colourPrimary = lipgloss.Color("#7C3AED")
	colourMuted   = lipgloss.Color("#6C7086")
	colourSuccess = lipgloss.Color("#A6E3A1")
	colourWarning = lipgloss.Color("#F9E2AF")
	colourError   = lipgloss.Color("#F38BA8")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colourPrimary)
	labelStyle   = lipgloss.NewStyle().Foreground(colourMuted).Width(12)
	mutedStyle   = lipgloss.NewStyle().Foreground(colourMuted)
	successStyle = lipgloss.NewStyle().Foreground(colourSuccess)
	warningStyle = lipgloss.NewStyle().Foreground(colourWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colourError)
)

// statusStyle colours a job status by outcome.
func statusStyle(s domain.JobStatus) lipgloss.Style {
	switch s {
	case domain.JobCompleted:
		return successStyle
	case domain.JobPartial, domain.JobInProgress:
		return warningStyle
	case domain.JobFailed:
		return errorStyle
	default:
		return mutedStyle
	}
}

func field(label, value string) string {
	return labelStyle.Render(label) + " " + value
}
