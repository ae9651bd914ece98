package formatter

import (
	"github.com/avandenberg/chargeclaim/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

// Gruvbox-inspired color palette.
var (
	ColorGreen  = lipgloss.Color("#8ec07c")
	ColorYellow = lipgloss.Color("#fabd2f")
	ColorRed    = lipgloss.Color("#fb4934")
	ColorDim    = lipgloss.Color("#928374")
	ColorHeader = lipgloss.Color("#fe8019")
)

// Predefined lipgloss styles.
var (
	StyleGreen  = lipgloss.NewStyle().Foreground(ColorGreen)
	StyleYellow = lipgloss.NewStyle().Foreground(ColorYellow)
	StyleRed    = lipgloss.NewStyle().Foreground(ColorRed)
	StyleDim    = lipgloss.NewStyle().Foreground(ColorDim)
	StyleHeader = lipgloss.NewStyle().Foreground(ColorHeader).Bold(true)
)

// OutcomeStyle returns the style used to render the given outcome.
func OutcomeStyle(o domain.Outcome) lipgloss.Style {
	switch o {
	case domain.OutcomeSubmitted:
		return StyleGreen
	case domain.OutcomeDryRun, domain.OutcomeSkippedDuplicate:
		return StyleDim
	case domain.OutcomeRejected:
		return StyleYellow
	case domain.OutcomeFailed:
		return StyleRed
	default:
		return StyleDim
	}
}
