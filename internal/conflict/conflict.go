// Package conflict decides what happens when a destination file already
// exists, and backs up files before they are overwritten.
package conflict

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/afero"

	tmpl "github.com/AntoineGS/tidygen/internal/template"
)

// Action is the outcome a conflict policy selects.
type Action string

// Conflict actions.
const (
	Overwrite Action = "overwrite"
	Skip      Action = "skip"
	Rename    Action = "rename"
)

// ErrUnknownAction is returned for a Decision whose Action is not recognized.
var ErrUnknownAction = errors.New("unknown conflict action")

// ParseAction converts a policy name into an Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case Overwrite, Skip, Rename:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

// Conflict describes a write aimed at a path that already exists.
type Conflict struct {
	Context    *tmpl.Context
	Path       string
	TemplateID string
	Existing   []byte
	Proposed   []byte
}

// Diff renders a line diff from the existing content to the proposed one.
func (c Conflict) Diff() string {
	dmp := diffmatchpatch.New()

	a, b, lineArray := dmp.DiffLinesToChars(string(c.Existing), string(c.Proposed))
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	if len(diffs) == 0 || len(diffs) == 1 && diffs[0].Type == diffmatchpatch.DiffEqual {
		return "No differences found.\n"
	}

	var sb strings.Builder
	sb.WriteString("--- " + c.Path + " (existing)\n")
	sb.WriteString("+++ " + c.Path + " (generated)\n")

	for _, diff := range diffs {
		lines := strings.Split(diff.Text, "\n")
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		for _, line := range lines {
			switch diff.Type {
			case diffmatchpatch.DiffDelete:
				sb.WriteString("- " + line + "\n")
			case diffmatchpatch.DiffInsert:
				sb.WriteString("+ " + line + "\n")
			case diffmatchpatch.DiffEqual:
				sb.WriteString("  " + line + "\n")
			}
		}
	}

	return sb.String()
}

// Decision is a hook's answer. Path optionally names the destination for a
// rename; when empty the resolver picks one.
type Decision struct {
	Action Action
	Path   string
}

// Hook is consulted for every conflict when overwrite is not forced.
type Hook interface {
	OnConflict(c Conflict) (Decision, error)
}

// HookFunc adapts a function to Hook.
type HookFunc func(c Conflict) (Decision, error)

// OnConflict calls f.
func (f HookFunc) OnConflict(c Conflict) (Decision, error) {
	return f(c)
}

// Fixed hooks that always choose the same action.
var (
	OverwriteHook Hook = fixedHook(Overwrite)
	SkipHook      Hook = fixedHook(Skip)
	RenameHook    Hook = fixedHook(Rename)
)

type fixedHook Action

func (h fixedHook) OnConflict(Conflict) (Decision, error) {
	return Decision{Action: Action(h)}, nil
}

// HookFor returns the fixed hook for a policy name. "prompt" has no fixed
// hook; callers supply an interactive one.
func HookFor(a Action) Hook {
	switch a {
	case Overwrite:
		return OverwriteHook
	case Rename:
		return RenameHook
	default:
		return SkipHook
	}
}

// Outcome is the resolved plan for one destination.
type Outcome struct {
	Action Action
	Path   string
	Write  bool
	Exists bool

	// Collision is set when the destination was already claimed in this run.
	Collision bool
}

// Resolver applies the conflict policy. Paths handed out by a rename are
// remembered so two renames in one run never pick the same name.
type Resolver struct {
	fs        afero.Fs
	hook      Hook
	logger    *slog.Logger
	now       func() time.Time
	claimed   map[string]bool
	mu        sync.Mutex
	overwrite bool
}

// NewResolver creates a Resolver. With overwrite set every conflict is
// overwritten without consulting hook; with a nil hook conflicts are skipped.
func NewResolver(fsys afero.Fs, overwrite bool, hook Hook) *Resolver {
	return &Resolver{
		fs:        fsys,
		overwrite: overwrite,
		hook:      hook,
		logger:    slog.Default(),
		now:       time.Now,
		claimed:   make(map[string]bool),
	}
}

// WithLogger sets a custom logger
func (r *Resolver) WithLogger(logger *slog.Logger) *Resolver {
	r.logger = logger
	return r
}

// WithClock replaces the clock used for backup timestamps.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Exists reports whether path exists.
func (r *Resolver) Exists(path string) bool {
	ok, err := afero.Exists(r.fs, path)
	return err == nil && ok
}

// Claim marks path as taken by the current run.
func (r *Resolver) Claim(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claimed[path] = true
}

// Claimed reports whether path was already claimed in this run.
func (r *Resolver) Claimed(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.claimed[path]
}

// ShouldWrite reports whether generated content may be written to path.
func (r *Resolver) ShouldWrite(path string, ctx *tmpl.Context) bool {
	out, err := r.Resolve(Conflict{Path: path, Context: ctx})
	if err != nil {
		r.logger.Warn("conflict hook failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return false
	}

	return out.Write
}

// Resolve decides the outcome for c. A missing destination is always
// written. The hook is only consulted for an existing destination when
// overwrite is not forced. A destination already claimed in this run is only
// written again under a new name, when the hook asks for a rename.
func (r *Resolver) Resolve(c Conflict) (Outcome, error) {
	if r.Claimed(c.Path) {
		return r.resolveCollision(c)
	}

	if !r.Exists(c.Path) {
		return Outcome{Action: Overwrite, Path: c.Path, Write: true}, nil
	}

	if r.overwrite {
		return Outcome{Action: Overwrite, Path: c.Path, Write: true, Exists: true}, nil
	}

	if r.hook == nil {
		return Outcome{Action: Skip, Path: c.Path, Exists: true}, nil
	}

	d, err := r.hook.OnConflict(c)
	if err != nil {
		return Outcome{Action: Skip, Path: c.Path, Exists: true}, fmt.Errorf("conflict hook for %s: %w", c.Path, err)
	}

	switch d.Action {
	case Overwrite:
		return Outcome{Action: Overwrite, Path: c.Path, Write: true, Exists: true}, nil
	case Skip, "":
		return Outcome{Action: Skip, Path: c.Path, Exists: true}, nil
	case Rename:
		target := d.Path
		if target == "" {
			target = r.FreeName(c.Path)
		}
		r.Claim(target)
		r.logger.Debug("renaming conflicting output",
			slog.String("path", c.Path),
			slog.String("to", target))
		return Outcome{Action: Rename, Path: target, Write: true, Exists: true}, nil
	default:
		return Outcome{Action: Skip, Path: c.Path, Exists: true}, fmt.Errorf("%w: %q", ErrUnknownAction, d.Action)
	}
}

func (r *Resolver) resolveCollision(c Conflict) (Outcome, error) {
	skip := Outcome{Action: Skip, Path: c.Path, Exists: true, Collision: true}
	if r.hook == nil {
		return skip, nil
	}

	d, err := r.hook.OnConflict(c)
	if err != nil {
		return skip, fmt.Errorf("conflict hook for %s: %w", c.Path, err)
	}
	if d.Action != Rename {
		r.logger.Debug("destination already generated in this run",
			slog.String("path", c.Path))
		return skip, nil
	}

	target := d.Path
	if target == "" || r.Claimed(target) {
		target = r.FreeName(c.Path)
	}
	r.Claim(target)

	return Outcome{Action: Rename, Path: target, Write: true, Exists: true, Collision: true}, nil
}

// FreeName returns the first "name.N.ext" sibling of path, N counting from 1,
// that neither exists nor was claimed in this run. A file without an
// extension gets "name.N".
func (r *Resolver) FreeName(path string) string {
	dir, file := filepath.Split(path)
	ext := filepath.Ext(file)
	stem := strings.TrimSuffix(file, ext)
	if stem == "" {
		stem, ext = file, ""
	}

	for n := 1; ; n++ {
		candidate := filepath.Join(dir, stem+"."+strconv.Itoa(n)+ext)
		if !r.Exists(candidate) && !r.Claimed(candidate) {
			return candidate
		}
	}
}
