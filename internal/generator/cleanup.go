package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/afero"

	"github.com/AntoineGS/tidygen/internal/state"
)

// Cleanup deletes every path the last run wrote, newest first, and returns
// the removed paths. Files that are already gone are not an error. Skipped
// destinations were never written and are left alone.
func (p *Pipeline) Cleanup() ([]string, error) {
	p.mu.Lock()
	written := p.written
	p.written = nil
	p.mu.Unlock()

	removed, err := removeAll(p.fs, written)
	for _, path := range removed {
		p.logger.Info("removed generated file", slog.String("path", path))
	}

	return removed, err
}

// CleanupRun deletes the files history recorded for runID and marks them
// removed. Files already marked are ignored.
func CleanupRun(ctx context.Context, fsys afero.Fs, history *state.Store, runID int64, logger *slog.Logger) ([]string, error) {
	files, err := history.RunFiles(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("loading files of run %d: %w", runID, err)
	}

	var removed []string
	var errs []error

	for i := len(files) - 1; i >= 0; i-- {
		f := files[i]
		if f.Removed {
			continue
		}

		if err := fsys.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, NewFileError("cleanup", f.Path, err))
			continue
		}

		if err := history.MarkRemoved(ctx, f.ID); err != nil {
			logger.Warn("failed to mark file removed",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
		}

		logger.Info("removed generated file",
			slog.Int64("run", runID),
			slog.String("path", f.Path))
		removed = append(removed, f.Path)
	}

	return removed, errors.Join(errs...)
}

func removeAll(fsys afero.Fs, paths []string) ([]string, error) {
	var removed []string
	var errs []error

	for i := len(paths) - 1; i >= 0; i-- {
		if err := fsys.Remove(paths[i]); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, NewFileError("cleanup", paths[i], err))
			continue
		}
		removed = append(removed, paths[i])
	}

	return removed, errors.Join(errs...)
}
