// Package ui renders generation results and asks about conflicts on a
// terminal.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	secondaryColor = lipgloss.Color("#10B981") // Green
	accentColor    = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Underline(true)

	MutedTextStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	DiffAddStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	DiffDeleteStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

// RenderHelp renders alternating key and description pairs on one line.
func RenderHelp(keys ...string) string {
	var b strings.Builder
	for i := 0; i < len(keys); i += 2 {
		if i > 0 {
			b.WriteString("  ")
		}
		desc := ""
		if i+1 < len(keys) {
			desc = keys[i+1]
		}
		b.WriteString(HelpKeyStyle.Render(keys[i]) + " " + HelpStyle.Render(desc))
	}

	return b.String()
}

// RenderDiff colors the lines of a conflict diff.
func RenderDiff(diff string) string {
	lines := strings.Split(strings.TrimRight(diff, "\n"), "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
			lines[i] = HeaderStyle.Render(line)
		case strings.HasPrefix(line, "+ "):
			lines[i] = DiffAddStyle.Render(line)
		case strings.HasPrefix(line, "- "):
			lines[i] = DiffDeleteStyle.Render(line)
		default:
			lines[i] = MutedTextStyle.Render(line)
		}
	}

	return strings.Join(lines, "\n")
}
