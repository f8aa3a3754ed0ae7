package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	degradedStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "#CC8800", Dark: "#FFAA00"}).
			Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#EEEEEE"}).
			Padding(0, 1)

	fallbackStyle = degradedStyle.
			BorderForeground(lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#5FAFFF"})

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"})
)

// Notice renders a boxed notice for a degraded or fallback result. It
// returns "" for any other status.
func Notice(status, reason string, width int) string {
	var style lipgloss.Style
	var msg string
	switch status {
	case "degraded":
		style = degradedStyle
		msg = fmt.Sprintf("Degraded result: %s", reason)
	case "fallback":
		style = fallbackStyle
		msg = fmt.Sprintf("Offline diagram from the directory structure: %s", reason)
	default:
		return ""
	}
	if width > 4 {
		style = style.MaxWidth(width)
	}
	return style.Render(msg)
}

// Footer renders the model and attempt line shown under a result.
func Footer(model string, attempts int, cached bool) string {
	switch {
	case cached:
		return footerStyle.Render(fmt.Sprintf("cached result from %s", model))
	case model == "":
		return ""
	case attempts == 1:
		return footerStyle.Render(fmt.Sprintf("%s, 1 attempt", model))
	default:
		return footerStyle.Render(fmt.Sprintf("%s, %d attempts", model, attempts))
	}
}
