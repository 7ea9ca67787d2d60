package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/berth-dev/skiff/internal/agent"
)

// Color constants.
const (
	primaryColor   = "#7C3AED" // Purple
	secondaryColor = "#10B981" // Green
	warningColor   = "#F59E0B" // Amber
	errorColor     = "#EF4444" // Red
	dimColor       = "#6B7280" // Gray
	infoColor      = "#3B82F6" // Blue
)

// Style variables for consistent TUI rendering.
var (
	// BoxStyle provides a rounded border box with primary color.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(primaryColor)).
			Padding(0, 1)

	// TitleStyle renders titles in primary color with bold.
	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(primaryColor)).
			Bold(true)

	// DimStyle renders dim/muted text.
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(dimColor))

	// SuccessStyle renders success messages in green.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(secondaryColor))

	// ErrorStyle renders error messages in red.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(errorColor))

	// WarningStyle renders warning messages in amber.
	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(warningColor))

	// UserStyle prefixes user prompts.
	UserStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(secondaryColor)).
			Bold(true)

	// AssistantStyle prefixes assistant text.
	AssistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(primaryColor)).
			Bold(true)

	// ToolStyle renders tool calls and their output headers.
	ToolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(infoColor))

	// StatusBarStyle provides styling for the status bar.
	StatusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#1F2937")).
			Foreground(lipgloss.Color("#9CA3AF")).
			Padding(0, 1)
)

// modeColors maps each permission mode to its badge color.
var modeColors = map[agent.PermissionMode]string{
	agent.ModeDefault:     dimColor,
	agent.ModeAcceptEdits: secondaryColor,
	agent.ModeBypass:      errorColor,
	agent.ModePlan:        infoColor,
}

// ModeBadge renders the permission mode as a colored badge.
func ModeBadge(mode string) string {
	m, err := agent.ParsePermissionMode(mode)
	if err != nil {
		return ErrorStyle.Render(mode)
	}
	return lipgloss.NewStyle().
		Background(lipgloss.Color(modeColors[m])).
		Foreground(lipgloss.Color("#FFFFFF")).
		Padding(0, 1).
		Render(string(m))
}
