// Package state records generation runs and the files they wrote in a SQLite
// database, so a later invocation can list or roll back a run.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// DBName is the file name of the history database inside the output root.
const DBName = ".tidygen.db"

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// RunRecord is one pipeline run.
type RunRecord struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Stage      string
	OutputRoot string
	Status     string
	ID         int64
	Generated  int
	Skipped    int
	Failed     int
	DryRun     bool
}

// FileRecord is one file written by a run.
type FileRecord struct {
	Path        string
	TemplateID  string
	Action      string
	BackupPath  string
	ContentHash string
	ID          int64
	RunID       int64
	Size        int64
	Removed     bool
}

// Counts are the totals a finished run reports.
type Counts struct {
	Generated int
	Skipped   int
	Failed    int
}

// Store manages the SQLite database for run history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close() //nolint:errcheck,gosec // best-effort cleanup on error path
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close() //nolint:errcheck,gosec // best-effort cleanup on error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun inserts a running record and returns its ID.
func (s *Store) BeginRun(ctx context.Context, outputRoot, stage string, dryRun bool) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (output_root, stage, dry_run, status)
		VALUES (?, ?, ?, ?)
	`, outputRoot, stage, dryRun, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading run id: %w", err)
	}

	return id, nil
}

// FinishRun stores the final counts and status of a run.
func (s *Store) FinishRun(ctx context.Context, runID int64, counts Counts, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET generated = ?, skipped = ?, failed = ?, status = ?, finished_at = ?
		WHERE id = ?
	`, counts.Generated, counts.Skipped, counts.Failed, status, time.Now().UTC().Format(time.RFC3339), runID)
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", runID, err)
	}

	return nil
}

// RecordFile stores a file written by run f.RunID.
func (s *Store) RecordFile(ctx context.Context, f FileRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_files (run_id, path, template_id, action, backup_path, content_hash, size)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, f.RunID, f.Path, f.TemplateID, f.Action, f.BackupPath, f.ContentHash, f.Size)
	if err != nil {
		return fmt.Errorf("recording file %s: %w", f.Path, err)
	}

	return nil
}

// MarkRemoved flags a recorded file as deleted by a cleanup.
func (s *Store) MarkRemoved(ctx context.Context, fileID int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE run_files SET removed = 1 WHERE id = ?`, fileID); err != nil {
		return fmt.Errorf("marking file %d removed: %w", fileID, err)
	}

	return nil
}

const runColumns = `id, started_at, COALESCE(finished_at, ''), stage, output_root, status, generated, skipped, failed, dry_run`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var r RunRecord
	var startedAt, finishedAt string

	if err := row.Scan(&r.ID, &startedAt, &finishedAt, &r.Stage, &r.OutputRoot, &r.Status, &r.Generated, &r.Skipped, &r.Failed, &r.DryRun); err != nil {
		return r, err
	}

	var err error
	r.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return r, fmt.Errorf("parsing started_at: %w", err)
	}

	if finishedAt != "" {
		r.FinishedAt, err = parseTime(finishedAt)
		if err != nil {
			return r, fmt.Errorf("parsing finished_at: %w", err)
		}
	}

	return r, nil
}

func (s *Store) queryRun(ctx context.Context, what, query string, args ...any) (*RunRecord, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // nil means "not found", distinct from error
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}

	return &r, nil
}

// GetRun returns the run with the given ID, or nil if there is none.
func (s *Store) GetRun(ctx context.Context, id int64) (*RunRecord, error) {
	return s.queryRun(ctx, "querying run by ID", `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
}

// LatestRun returns the most recent run that was not a dry run, or nil.
func (s *Store) LatestRun(ctx context.Context) (*RunRecord, error) {
	return s.queryRun(ctx, "querying latest run",
		`SELECT `+runColumns+` FROM runs WHERE dry_run = 0 ORDER BY id DESC LIMIT 1`)
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer func() { _ = rows.Close() }() //nolint:errcheck,gosec // defer close is best-effort

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// RunFiles returns the files recorded for a run in the order they were written.
func (s *Store) RunFiles(ctx context.Context, runID int64) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, path, template_id, action, backup_path, content_hash, size, removed
		FROM run_files
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying run files: %w", err)
	}
	defer func() { _ = rows.Close() }() //nolint:errcheck,gosec // defer close is best-effort

	var files []FileRecord
	for rows.Next() {
		var f FileRecord
		if err := rows.Scan(&f.ID, &f.RunID, &f.Path, &f.TemplateID, &f.Action, &f.BackupPath, &f.ContentHash, &f.Size, &f.Removed); err != nil {
			return nil, fmt.Errorf("scanning run file: %w", err)
		}
		files = append(files, f)
	}

	return files, rows.Err()
}

// PruneRuns keeps only the keepN most recent runs and their files.
func (s *Store) PruneRuns(ctx context.Context, keepN int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning prune: %w", err)
	}

	keep := `SELECT id FROM runs ORDER BY id DESC LIMIT ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_files WHERE run_id NOT IN (`+keep+`)`, keepN); err != nil {
		_ = tx.Rollback() //nolint:errcheck,gosec // rollback best-effort
		return fmt.Errorf("pruning run files: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id NOT IN (`+keep+`)`, keepN); err != nil {
		_ = tx.Rollback() //nolint:errcheck,gosec // rollback best-effort
		return fmt.Errorf("pruning runs: %w", err)
	}

	return tx.Commit()
}

// migrate runs schema migrations.
func (s *Store) migrate(ctx context.Context) error {
	currentVersion := s.getSchemaVersion(ctx)

	migrations := []func(context.Context, *sql.Tx) error{
		migrateV1,
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", i+1, err)
		}

		if err := migrations[i](ctx, tx); err != nil {
			_ = tx.Rollback() //nolint:errcheck,gosec // rollback best-effort on migration failure
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
			_ = tx.Rollback() //nolint:errcheck,gosec // rollback best-effort
			return fmt.Errorf("updating schema version: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			_ = tx.Rollback() //nolint:errcheck,gosec // rollback best-effort
			return fmt.Errorf("inserting schema version: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", i+1, err)
		}
	}

	return nil
}

// getSchemaVersion returns the current schema version, or 0 if the schema_version table doesn't exist.
func (s *Store) getSchemaVersion(ctx context.Context) int {
	var tableName string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&tableName)
	if err != nil {
		return 0
	}

	var version int
	if err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version); err != nil {
		return 0
	}

	return version
}

// parseTime parses a timestamp string from SQLite, trying multiple formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}

// migrateV1 creates the initial schema.
func migrateV1(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			finished_at  TEXT,
			stage        TEXT NOT NULL,
			output_root  TEXT NOT NULL,
			status       TEXT NOT NULL,
			generated    INTEGER NOT NULL DEFAULT 0,
			skipped      INTEGER NOT NULL DEFAULT 0,
			failed       INTEGER NOT NULL DEFAULT 0,
			dry_run      BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS run_files (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id        INTEGER NOT NULL REFERENCES runs(id),
			path          TEXT NOT NULL,
			template_id   TEXT NOT NULL,
			action        TEXT NOT NULL,
			backup_path   TEXT NOT NULL DEFAULT '',
			content_hash  TEXT NOT NULL,
			size          INTEGER NOT NULL,
			removed       BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_files_run
			ON run_files(run_id, id)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt[:40], err)
		}
	}

	return nil
}
