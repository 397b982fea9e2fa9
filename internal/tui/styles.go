package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/moderndownloader/bridge/internal/config"
)

var (
	// Colors
	ColorPrimary   = lipgloss.AdaptiveColor{Light: "#6c4bbf", Dark: "#bd93f9"} // Dracula Purple
	ColorSecondary = lipgloss.AdaptiveColor{Light: "#c2367f", Dark: "#ff79c6"} // Dracula Pink
	ColorSuccess   = lipgloss.AdaptiveColor{Light: "#1f8a3b", Dark: "#50fa7b"} // Dracula Green
	ColorError     = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ff5555"} // Dracula Red
	ColorWarning   = lipgloss.AdaptiveColor{Light: "#b35c00", Dark: "#ffb86c"} // Dracula Orange
	ColorText      = lipgloss.AdaptiveColor{Light: "#282a36", Dark: "#f8f8f2"} // Dracula Foreground
	ColorSubtext   = lipgloss.AdaptiveColor{Light: "#6272a4", Dark: "#6272a4"} // Dracula Comment
	ColorBorder    = lipgloss.AdaptiveColor{Light: "#c0c4d6", Dark: "#44475a"} // Dracula Selection

	// Styles
	AppStyle = lipgloss.NewStyle().
			Padding(DefaultPaddingY, 2).
			Foreground(ColorText)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true).
			Padding(DefaultPaddingY, DefaultPaddingX).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(ColorPrimary).
			BorderBottom(true)

	StatsStyle = lipgloss.NewStyle().
			Foreground(ColorSubtext).
			Padding(DefaultPaddingY, DefaultPaddingX)

	BadgeStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	// Base Card Style
	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(DefaultPaddingY, DefaultPaddingX)

	// Selected Card Style (highlighted border)
	SelectedCardStyle = CardStyle.
				BorderForeground(ColorSecondary)

	CardTitleStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	CardStatsStyle = lipgloss.NewStyle().
			Foreground(ColorSubtext).
			Italic(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	StatusBarStyle = lipgloss.NewStyle().
			Foreground(ColorSubtext).
			Padding(DefaultPaddingY, DefaultPaddingX)
)

// ApplyTheme picks light or dark colors. Adaptive asks the terminal.
func ApplyTheme(theme int) {
	switch theme {
	case config.ThemeLight:
		lipgloss.SetHasDarkBackground(false)
	case config.ThemeDark:
		lipgloss.SetHasDarkBackground(true)
	default:
		lipgloss.SetHasDarkBackground(termenv.HasDarkBackground())
	}
}

// badgeColor maps the advertised indicator to a color.
func badgeColor(badge string) lipgloss.TerminalColor {
	switch badge {
	case "connected":
		return ColorSuccess
	case "active":
		return ColorWarning
	case "done":
		return ColorPrimary
	case "disconnected":
		return ColorError
	}
	return ColorSubtext
}
