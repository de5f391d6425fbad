package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	badge = lipgloss.NewStyle().Bold(true).Padding(0, 1)

	highBadge = badge.
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#04B575"))

	midBadge = badge.
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#EEC643"))

	lowBadge = badge.
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#C0392B"))

	hint = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#6C6C6C",
		Dark:  "#9B9B9B",
	})
)

// Confidence renders a confidence score as a coloured percentage badge.
// Scores that clear threshold are green.
func Confidence(c, threshold float64) string {
	text := fmt.Sprintf("%3.0f%%", c*100)

	switch {
	case c >= threshold:
		return highBadge.Render(text)
	case c >= threshold/2:
		return midBadge.Render(text)
	default:
		return lowBadge.Render(text)
	}
}

// Hint renders secondary text.
func Hint(s string) string {
	return hint.Render(s)
}
