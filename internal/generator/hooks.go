package generator

import (
	"context"

	"github.com/AntoineGS/tidygen/internal/conflict"
	tmpl "github.com/AntoineGS/tidygen/internal/template"
)

// FileEvent describes a file about to be or just written. BeforeFileWrite
// hooks may replace Content. Kind is the validation kind of a rendered
// template and empty for a copied file.
type FileEvent struct {
	Context    *tmpl.Context
	TemplateID string
	Path       string
	Kind       string
	Content    []byte
}

// Hooks are the lifecycle observers of a pipeline. Each list fires in
// registration order, synchronously.
type Hooks struct {
	// OnConflict decides collisions with existing destinations.
	OnConflict conflict.Hook

	BeforeGenerate  []func(ctx context.Context, vars *tmpl.Context) error
	BeforeFileWrite []func(ev *FileEvent) error
	AfterFileWrite  []func(ev FileEvent, r Result) error
	AfterGenerate   []func(s *Summary) error
	OnError         []func(r Result)
}

// OnBeforeGenerate registers fn to run once before discovery. An error
// aborts the run.
func (h *Hooks) OnBeforeGenerate(fn func(ctx context.Context, vars *tmpl.Context) error) {
	h.BeforeGenerate = append(h.BeforeGenerate, fn)
}

// OnBeforeFileWrite registers fn to run before each write. Returning an error
// wrapping ErrVeto skips the file; any other error fails it.
func (h *Hooks) OnBeforeFileWrite(fn func(ev *FileEvent) error) {
	h.BeforeFileWrite = append(h.BeforeFileWrite, fn)
}

// OnAfterFileWrite registers fn to run after each successful write. An error
// fails the file.
func (h *Hooks) OnAfterFileWrite(fn func(ev FileEvent, r Result) error) {
	h.AfterFileWrite = append(h.AfterFileWrite, fn)
}

// OnAfterGenerate registers fn to run once with the finished summary. It
// also runs when the loop stopped early on fail-fast, a fatal error or
// cancellation; its errors are joined with the run error.
func (h *Hooks) OnAfterGenerate(fn func(s *Summary) error) {
	h.AfterGenerate = append(h.AfterGenerate, fn)
}

// OnFailure registers fn to run for every failed file.
func (h *Hooks) OnFailure(fn func(r Result)) {
	h.OnError = append(h.OnError, fn)
}
