package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/AntoineGS/tidygen/internal/state"
)

func TestRenderHistory(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	started := time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local)
	runs := []state.RunRecord{
		{ID: 12, StartedAt: started, Stage: "api", Status: state.StatusFailed, Generated: 3, Failed: 1, OutputRoot: "/srv/out"},
		{ID: 11, StartedAt: started, Stage: "default", Status: state.StatusCompleted, Generated: 10, Skipped: 2, OutputRoot: "/srv/out", DryRun: true},
	}

	got := normalizeOutput(stripAnsiCodes(RenderHistory(runs)))
	want := strings.Join([]string{
		"RUN  STARTED              STAGE              STATUS     GEN  SKIP  FAIL  OUTPUT",
		"12   2024-05-06 07:08:09  api                failed     3    0     1     /srv/out",
		"11   2024-05-06 07:08:09  default (dry run)  completed  10   2     0     /srv/out",
	}, "\n")
	if got != want {
		t.Errorf("RenderHistory() =\n%s\nwant\n%s", got, want)
	}

	if empty := stripAnsiCodes(RenderHistory(nil)); empty != "No runs recorded.\n" {
		t.Errorf("RenderHistory(nil) = %q", empty)
	}
}
