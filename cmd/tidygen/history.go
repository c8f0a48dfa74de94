package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AntoineGS/tidygen/internal/generator"
	"github.com/AntoineGS/tidygen/internal/state"
	"github.com/AntoineGS/tidygen/internal/ui"
)

var (
	historyLimit int
	cleanupRunID int64
	keepRuns     int
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded generation runs",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	cmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to show")
	cmd.Flags().IntVar(&keepRuns, "prune", 0, "Delete all but the N most recent runs from history")

	return cmd
}

func newCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete the files written by a run",
		Long: `Delete the files a recorded run wrote. Without --run the latest run that
was not a dry run is used. Backups are left in place.`,
		Args: cobra.NoArgs,
		RunE: runCleanup,
	}
	cmd.Flags().Int64Var(&cleanupRunID, "run", 0, "Run ID to clean up (default latest)")

	return cmd
}

// openHistoryFor opens the project's run history whether or not generate
// records to it.
func openHistoryFor() (*project, *state.Store, error) {
	p, err := loadProject()
	if err != nil {
		return nil, nil, err
	}

	db, err := state.Open(p.historyPath())
	if err != nil {
		return nil, nil, fmt.Errorf("opening run history: %w", err)
	}

	return p, db, nil
}

func runHistory(_ *cobra.Command, _ []string) error {
	_, db, err := openHistoryFor()
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // best-effort cleanup

	ctx := context.Background()

	if keepRuns > 0 {
		if err := db.PruneRuns(ctx, keepRuns); err != nil {
			return err
		}
	}

	runs, err := db.ListRuns(ctx, historyLimit)
	if err != nil {
		return err
	}

	fmt.Print(ui.RenderHistory(runs))

	return nil
}

func runCleanup(_ *cobra.Command, _ []string) error {
	p, db, err := openHistoryFor()
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // best-effort cleanup

	ctx := context.Background()

	var run *state.RunRecord
	if cleanupRunID != 0 {
		run, err = db.GetRun(ctx, cleanupRunID)
	} else {
		run, err = db.LatestRun(ctx)
	}
	if err != nil {
		return err
	}
	if run == nil {
		return errors.New("no recorded run to clean up")
	}

	removed, err := generator.CleanupRun(ctx, p.fs, db, run.ID, slog.Default())
	for _, path := range removed {
		fmt.Printf("removed %s\n", path)
	}
	fmt.Printf("Cleaned up %d file(s) from run %d\n", len(removed), run.ID)

	return err
}
