package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/AntoineGS/tidygen/internal/conflict"
	"github.com/AntoineGS/tidygen/internal/generator"
)

// RenderSummary renders the totals, one row per result and every warning.
func RenderSummary(sum *generator.Summary) string {
	var b strings.Builder

	totals := fmt.Sprintf("%s %d  %s %d  %s %d  %s %d  %s",
		SuccessStyle.Render("generated"), sum.Generated,
		MutedTextStyle.Render("skipped"), sum.Skipped,
		ErrorStyle.Render("failed"), sum.Failed,
		WarningStyle.Render("warnings"), sum.Warnings(),
		MutedTextStyle.Render("in "+sum.Duration.Round(time.Millisecond).String()))
	b.WriteString(TitleStyle.Render("Summary") + "\n")
	b.WriteString(totals + "\n")

	if len(sum.Results) == 0 {
		b.WriteString("\n" + MutedTextStyle.Render("No templates found.") + "\n")
		return b.String()
	}

	rows := [][]string{{"STATUS", "STAGE", "TEMPLATE", "PATH", "DETAIL"}}
	for _, r := range sum.Results {
		rows = append(rows, []string{string(r.Status), r.Stage, r.TemplateID, r.Path, detail(r)})
	}

	b.WriteString("\n")
	b.WriteString(renderTable(rows, func(row, col int, cell string) string {
		if row == 0 {
			return HeaderStyle.Render(cell)
		}
		if col == 0 {
			return statusStyle(generator.Status(rows[row][0])).Render(cell)
		}
		return cell
	}))

	var warnings []string
	for _, r := range sum.Results {
		for _, w := range r.Warnings {
			warnings = append(warnings, w.String())
		}
	}
	if len(warnings) > 0 {
		b.WriteString("\n" + WarningStyle.Render("Warnings") + "\n")
		for _, w := range warnings {
			b.WriteString("  " + w + "\n")
		}
	}

	return b.String()
}

func statusStyle(s generator.Status) lipgloss.Style {
	switch s {
	case generator.StatusGenerated:
		return SuccessStyle
	case generator.StatusFailed:
		return ErrorStyle
	default:
		return MutedTextStyle
	}
}

func detail(r generator.Result) string {
	var parts []string

	switch {
	case r.Err != nil:
		parts = append(parts, r.Err.Error())
	case r.Reason != "":
		parts = append(parts, r.Reason)
	}
	if r.DryRun && r.Status == generator.StatusGenerated {
		parts = append(parts, "planned")
	}
	if r.Action == conflict.Rename {
		parts = append(parts, "renamed")
	}
	if r.BackupPath != "" {
		parts = append(parts, "backup "+r.BackupPath)
	}

	return strings.Join(parts, "; ")
}

// renderTable pads every column to its widest cell. Cells are measured
// before styling so colors do not break alignment.
func renderTable(rows [][]string, style func(row, col int, cell string) string) string {
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	for r, row := range rows {
		var line strings.Builder
		for c, cell := range row {
			line.WriteString(style(r, c, cell))
			if c < len(row)-1 {
				line.WriteString(strings.Repeat(" ", widths[c]-lipgloss.Width(cell)+2))
			}
		}
		b.WriteString(strings.TrimRight(line.String(), " ") + "\n")
	}

	return b.String()
}
