package ui

import (
	"strconv"
	"strings"

	"github.com/AntoineGS/tidygen/internal/state"
)

const historyTimeFormat = "2006-01-02 15:04:05"

// RenderHistory renders recorded runs, newest first as given.
func RenderHistory(runs []state.RunRecord) string {
	if len(runs) == 0 {
		return MutedTextStyle.Render("No runs recorded.") + "\n"
	}

	rows := [][]string{{"RUN", "STARTED", "STAGE", "STATUS", "GEN", "SKIP", "FAIL", "OUTPUT"}}
	for _, r := range runs {
		stage := r.Stage
		if r.DryRun {
			stage += " (dry run)"
		}
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.StartedAt.Local().Format(historyTimeFormat),
			stage,
			r.Status,
			strconv.Itoa(r.Generated),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Failed),
			r.OutputRoot,
		})
	}

	var b strings.Builder
	b.WriteString(renderTable(rows, func(row, col int, cell string) string {
		switch {
		case row == 0:
			return HeaderStyle.Render(cell)
		case col == 3 && cell == state.StatusCompleted:
			return SuccessStyle.Render(cell)
		case col == 3 && cell == state.StatusFailed:
			return ErrorStyle.Render(cell)
		case col == 3:
			return WarningStyle.Render(cell)
		}
		return cell
	}))

	return b.String()
}
