// Package paths maps template IDs to destination paths under an output root.
package paths

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	tmpl "github.com/AntoineGS/tidygen/internal/template"
)

// ErrPathEscape means a resolved path would land outside the output root.
var ErrPathEscape = errors.New("path escapes output root")

// Interpolator substitutes variables in a string. *template.Engine
// implements it.
type Interpolator interface {
	Interpolate(name, text string, ctx *tmpl.Context) tmpl.Rendered
}

// Resolver computes destination paths.
type Resolver struct {
	engine     Interpolator
	outputRoot string
	suffix     string
}

// NewResolver creates a Resolver for outputRoot. An empty suffix means
// template.DefaultSuffix.
func NewResolver(engine Interpolator, outputRoot, suffix string) *Resolver {
	if suffix == "" {
		suffix = tmpl.DefaultSuffix
	}

	return &Resolver{engine: engine, outputRoot: outputRoot, suffix: suffix}
}

// OutputRoot returns the directory destinations are joined to.
func (r *Resolver) OutputRoot() string {
	return r.outputRoot
}

// Resolve strips one template suffix from rel's file name, substitutes
// {{var}} placeholders in every path segment and joins the result to the
// output root. Unresolved placeholders stay in the path and are returned as
// warnings.
func (r *Resolver) Resolve(rel string, ctx *tmpl.Context) (string, []tmpl.Warning, error) {
	rel = filepath.ToSlash(rel)
	dir, file := path.Split(rel)
	file = tmpl.TargetName(file, r.suffix)

	res := r.engine.Interpolate(rel, dir+file, ctx)

	out := path.Clean(res.Output)
	if out == "." || out == ".." || strings.HasPrefix(out, "../") || path.IsAbs(out) {
		return "", res.Warnings, fmt.Errorf("%w: %s resolves to %q", ErrPathEscape, rel, res.Output)
	}

	return filepath.Join(r.outputRoot, filepath.FromSlash(out)), res.Warnings, nil
}
