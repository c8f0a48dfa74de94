// Package generator runs templates from a store through rendering, path
// resolution, conflict handling and writing, reporting one result per file.
package generator

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/AntoineGS/tidygen/internal/conflict"
	"github.com/AntoineGS/tidygen/internal/paths"
	"github.com/AntoineGS/tidygen/internal/state"
	"github.com/AntoineGS/tidygen/internal/store"
	tmpl "github.com/AntoineGS/tidygen/internal/template"
)

// File permissions constants
const (
	// DirPerms are the default permissions for created directories (rwxr-x---)
	DirPerms os.FileMode = 0750

	// FilePerms are the default permissions for generated files (rw-r--r--)
	FilePerms os.FileMode = 0644
)

// Options configure a Pipeline.
type Options struct {
	// Defaults sit underneath the variables passed to Run.
	Defaults   map[string]any
	Stage      string
	OutputRoot string
	Overwrite  bool
	Backup     bool
	Validate   bool
	Strict     bool
	FailFast   bool
	DryRun     bool
}

// Pipeline generates every template of a store into an output root. Files are
// processed one at a time in discovery order.
type Pipeline struct {
	fs      afero.Fs
	store   *store.Store
	engine  *tmpl.Engine
	paths   *paths.Resolver
	history *state.Store
	logger  *slog.Logger
	now     func() time.Time
	hooks   Hooks
	opts    Options

	mu      sync.Mutex
	written []string
}

// New creates a Pipeline reading from st and writing through fsys.
func New(fsys afero.Fs, st *store.Store, engine *tmpl.Engine, opts Options) *Pipeline {
	return &Pipeline{
		fs:     fsys,
		store:  st,
		engine: engine,
		paths:  paths.NewResolver(engine, opts.OutputRoot, st.Suffix()),
		logger: slog.Default(),
		now:    time.Now,
		opts:   opts,
	}
}

// WithLogger sets a custom logger
func (p *Pipeline) WithLogger(logger *slog.Logger) *Pipeline {
	p.logger = logger
	return p
}

// WithHistory records runs and written files in h.
func (p *Pipeline) WithHistory(h *state.Store) *Pipeline {
	p.history = h
	return p
}

// WithHooks replaces the pipeline's hooks.
func (p *Pipeline) WithHooks(h Hooks) *Pipeline {
	p.hooks = h
	return p
}

// WithClock replaces the clock used for timings and backup stamps.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Hooks returns the pipeline's hooks for registration.
func (p *Pipeline) Hooks() *Hooks {
	return &p.hooks
}

// Options returns the options the pipeline was created with.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Written returns the paths written by the last run, in write order.
func (p *Pipeline) Written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.written...)
}

// checkContext checks if context is canceled and returns error
func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Run generates every template against vars. Per-file failures are reported
// in the summary; the returned error is set only for a fatal problem, a
// fail-fast stop, a cancellation or a failing AfterGenerate hook. The summary
// is never nil.
func (p *Pipeline) Run(ctx context.Context, vars *tmpl.Context) (*Summary, error) {
	start := p.now()
	sum := &Summary{}

	p.mu.Lock()
	p.written = nil
	p.mu.Unlock()

	if vars == nil {
		vars = tmpl.NewContext()
	}
	if len(p.opts.Defaults) > 0 {
		vars = tmpl.NewContext(p.opts.Defaults, vars.Map())
	}

	for _, fn := range p.hooks.BeforeGenerate {
		if err := fn(ctx, vars); err != nil {
			return sum, fmt.Errorf("%w: %w", ErrBeforeGenerate, err)
		}
	}

	ids, err := p.store.ListAll()
	if err != nil {
		return sum, err
	}

	p.logger.Debug("discovered templates",
		slog.String("stage", p.opts.Stage),
		slog.Int("count", len(ids)))

	runID := p.beginRun(ctx)
	if runID != 0 {
		sum.RunIDs = append(sum.RunIDs, runID)
	}

	cr := conflict.NewResolver(p.fs, p.opts.Overwrite, p.hooks.OnConflict).
		WithLogger(p.logger).
		WithClock(p.now)

	status := state.StatusCompleted
	var runErr error

	for _, id := range ids {
		if err := checkContext(ctx); err != nil {
			status = state.StatusCancelled
			runErr = err
			break
		}

		res, fatal := p.process(ctx, runID, id, vars, cr)
		sum.add(res)

		if res.Status == StatusFailed {
			for _, fn := range p.hooks.OnError {
				fn(res)
			}
		}

		if fatal != nil {
			status = state.StatusFailed
			runErr = fatal
			break
		}

		if res.Status == StatusFailed && p.opts.FailFast {
			status = state.StatusFailed
			runErr = res.Err
			break
		}
	}

	sum.Files = p.Written()
	sum.Duration = p.now().Sub(start)

	errs := []error{runErr}
	for _, fn := range p.hooks.AfterGenerate {
		if err := fn(sum); err != nil {
			errs = append(errs, err)
		}
	}
	runErr = errors.Join(errs...)

	p.finishRun(ctx, runID, sum, status)

	p.logger.Info("generation finished",
		slog.String("stage", p.opts.Stage),
		slog.Int("generated", sum.Generated),
		slog.Int("skipped", sum.Skipped),
		slog.Int("failed", sum.Failed))

	return sum, runErr
}

// process moves one template through the file lifecycle. A non-nil error is
// fatal for the whole run; the result always carries the file's outcome.
//
//nolint:gocyclo // one branch per lifecycle step
func (p *Pipeline) process(ctx context.Context, runID int64, id string, vars *tmpl.Context, cr *conflict.Resolver) (res Result, fatal error) {
	start := p.now()
	res = Result{
		Stage:      p.opts.Stage,
		TemplateID: id,
		State:      StateDiscovered,
		DryRun:     p.opts.DryRun,
	}

	var content []byte
	wrote := false

	defer func() {
		res.Metrics.Duration = p.now().Sub(start)
		if wrote {
			p.record(ctx, runID, res, content)
			if res.Status != StatusFailed {
				res.State = StateRecorded
			}
		}
	}()

	t, err := p.store.Load(id)
	if err != nil {
		res = p.fail(res, "load", id, err)
		if errors.Is(err, store.ErrMetadata) {
			return res, err
		}
		return res, nil
	}

	scope := vars
	if len(t.Metadata.Defaults) > 0 {
		scope = tmpl.NewContext(t.Metadata.Defaults, vars.Map())
	}

	content = []byte(t.Content)
	if t.IsTemplate {
		for _, key := range store.MissingKeys(scope, t.Metadata) {
			res.Warnings = append(res.Warnings, tmpl.Warning{
				Kind:     tmpl.WarnMissingKey,
				Template: id,
				Message:  "missing required key " + key,
			})
		}

		out, err := p.engine.Render(id, t.Content, scope)
		res.Warnings = append(res.Warnings, out.Warnings...)
		if err != nil {
			return p.fail(res, "render", id, err), err
		}
		content = []byte(out.Output)
	}
	res.State = StateRendered

	dest, warnings, err := p.paths.Resolve(id, scope)
	res.Warnings = append(res.Warnings, warnings...)
	if err != nil {
		return p.fail(res, "resolve", id, err), nil
	}
	res.Path = dest
	res.State = StatePathResolved

	for _, w := range res.Warnings {
		p.logger.Warn("template warning",
			slog.String("template", id),
			slog.String("warning", w.String()))
	}

	if p.opts.Strict && len(res.Warnings) > 0 {
		return p.fail(res, "render", dest, fmt.Errorf("%w: %d warning(s)", ErrStrict, len(res.Warnings))), nil
	}

	if !t.IsTemplate && !p.opts.Overwrite && !cr.Claimed(dest) && cr.Exists(dest) {
		res.State = StateConflictChecked
		res.Action = conflict.Skip
		return p.skip(res, "destination exists"), nil
	}

	out, err := cr.Resolve(p.conflictFor(t, dest, scope, content))
	if err != nil {
		return p.fail(res, "conflict", dest, err), nil
	}
	res.State = StateConflictChecked
	res.Action = out.Action
	if !out.Write {
		reason := "destination exists"
		if out.Collision {
			reason = "destination already generated in this run"
		}
		return p.skip(res, reason), nil
	}
	dest = out.Path
	res.Path = dest

	kind := ""
	if t.IsTemplate {
		kind = KindOf(dest, t.Metadata.Kind)
	}

	ev := &FileEvent{Context: scope, TemplateID: id, Path: dest, Kind: kind, Content: content}
	for _, fn := range p.hooks.BeforeFileWrite {
		if err := fn(ev); err != nil {
			if errors.Is(err, ErrVeto) {
				return p.skip(res, err.Error()), nil
			}
			return p.fail(res, "before-write hook", dest, err), nil
		}
	}
	content = ev.Content
	res.Metrics.Size = int64(len(content))
	cr.Claim(dest)

	if p.opts.DryRun {
		res.Status = StatusGenerated
		p.logger.Info("would write file",
			slog.String("template", id),
			slog.String("path", dest))
		return res, nil
	}

	if out.Exists && out.Action == conflict.Overwrite && p.opts.Backup {
		bak, err := cr.Backup(dest)
		if err != nil {
			p.logger.Warn("backup failed, writing anyway",
				slog.String("path", dest),
				slog.String("error", err.Error()))
		} else {
			res.BackupPath = bak
			res.State = StateBackedUp
		}
	}

	if err := p.write(dest, content); err != nil {
		return p.fail(res, "write", dest, err), nil
	}
	wrote = true
	res.State = StateWritten

	p.logger.Info("wrote file",
		slog.String("template", id),
		slog.String("path", dest),
		slog.String("action", string(out.Action)))

	if p.opts.Validate && t.IsTemplate {
		if err := Validate(kind, content); err != nil {
			return p.fail(res, "validate", dest, err), nil
		}
		res.State = StateValidated
	}

	res.Status = StatusGenerated
	written := FileEvent{Context: scope, TemplateID: id, Path: dest, Kind: kind, Content: content}
	for _, fn := range p.hooks.AfterFileWrite {
		if err := fn(written, res); err != nil {
			return p.fail(res, "after-write hook", dest, err), nil
		}
	}
	res.State = StateHookNotified

	return res, nil
}

func (p *Pipeline) conflictFor(t *store.Template, dest string, scope *tmpl.Context, content []byte) conflict.Conflict {
	c := conflict.Conflict{
		Context:    scope,
		Path:       dest,
		TemplateID: t.ID,
		Proposed:   content,
	}

	if existing, err := afero.ReadFile(p.fs, dest); err == nil {
		c.Existing = existing
	}

	return c
}

func (p *Pipeline) write(dest string, content []byte) error {
	if err := p.fs.MkdirAll(filepath.Dir(dest), DirPerms); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	if err := afero.WriteFile(p.fs, dest, content, FilePerms); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	p.mu.Lock()
	p.written = append(p.written, dest)
	p.mu.Unlock()

	return nil
}

func (p *Pipeline) skip(res Result, reason string) Result {
	res.Status = StatusSkipped
	res.Reason = reason

	p.logger.Debug("skipped file",
		slog.String("template", res.TemplateID),
		slog.String("path", res.Path),
		slog.String("reason", reason))

	return res
}

func (p *Pipeline) fail(res Result, op, path string, err error) Result {
	res.Status = StatusFailed
	res.Err = NewFileError(op, path, err)

	p.logger.Error("generation failed",
		slog.String("template", res.TemplateID),
		slog.String("op", op),
		slog.String("error", err.Error()))

	return res
}

func (p *Pipeline) beginRun(ctx context.Context) int64 {
	if p.history == nil {
		return 0
	}

	id, err := p.history.BeginRun(ctx, p.paths.OutputRoot(), p.opts.Stage, p.opts.DryRun)
	if err != nil {
		p.logger.Warn("failed to record run", slog.String("error", err.Error()))
		return 0
	}

	return id
}

func (p *Pipeline) finishRun(ctx context.Context, runID int64, sum *Summary, status string) {
	if p.history == nil || runID == 0 {
		return
	}

	counts := state.Counts{Generated: sum.Generated, Skipped: sum.Skipped, Failed: sum.Failed}
	if err := p.history.FinishRun(context.WithoutCancel(ctx), runID, counts, status); err != nil {
		p.logger.Warn("failed to finish run record",
			slog.Int64("run", runID),
			slog.String("error", err.Error()))
	}
}

func (p *Pipeline) record(ctx context.Context, runID int64, res Result, content []byte) {
	if p.history == nil || runID == 0 {
		return
	}

	rec := state.FileRecord{
		RunID:       runID,
		Path:        res.Path,
		TemplateID:  res.TemplateID,
		Action:      string(res.Action),
		BackupPath:  res.BackupPath,
		ContentHash: fmt.Sprintf("%x", sha256.Sum256(content)),
		Size:        int64(len(content)),
	}

	if err := p.history.RecordFile(context.WithoutCancel(ctx), rec); err != nil {
		p.logger.Warn("failed to record file",
			slog.String("path", res.Path),
			slog.String("error", err.Error()))
	}
}
