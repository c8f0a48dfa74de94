// Package helpers provides the registry of named functions callable from
// templates, pre-populated with the built-in helpers.
package helpers

import (
	"slices"
	"sync"
	"time"

	tmpl "github.com/AntoineGS/tidygen/internal/template"
)

// Registry maps helper names to functions. Registering an existing name
// shadows it. Built-ins cannot be removed: unregistering a shadowed built-in
// brings the built-in back.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]tmpl.HelperFunc
	custom   map[string]tmpl.HelperFunc
	now      func() time.Time
}

// New creates a registry holding the built-in helpers.
func New() *Registry {
	r := &Registry{
		custom: make(map[string]tmpl.HelperFunc),
		now:    time.Now,
	}
	r.builtins = builtins(r)

	return r
}

// SetClock replaces the clock used by date helpers for "now".
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *Registry) clock() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.now()
}

// Register adds or replaces a helper.
func (r *Registry) Register(name string, fn tmpl.HelperFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[name] = fn
}

// Lookup returns the helper registered under name.
func (r *Registry) Lookup(name string) (tmpl.HelperFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if fn, ok := r.custom[name]; ok {
		return fn, true
	}

	fn, ok := r.builtins[name]

	return fn, ok
}

// Unregister removes a runtime registration and reports whether one existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.custom[name]; !ok {
		return false
	}
	delete(r.custom, name)

	return true
}

// IsBuiltin reports whether name is a built-in helper.
func (r *Registry) IsBuiltin(name string) bool {
	_, ok := r.builtins[name]
	return ok
}

// Names returns every visible helper name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.builtins)+len(r.custom))
	for name := range r.builtins {
		names = append(names, name)
	}
	for name := range r.custom {
		if _, ok := r.builtins[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	return names
}
