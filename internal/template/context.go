// Package template parses and renders directive templates against a layered,
// dot-path addressable context.
package template

import (
	"fmt"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/AntoineGS/tidygen/internal/platform"
)

// Context holds the values a template is rendered against. Keys keep their
// insertion order. A scope created by Extend shadows its parent and never
// modifies it.
type Context struct {
	parent *Context
	keys   []string
	values map[string]any
}

// NewContext builds a root context from layers, lowest precedence first.
// Nested maps are merged key by key; any other value in a later layer replaces
// the earlier one. Keys of each layer are inserted in sorted order so the
// resulting context is deterministic.
func NewContext(layers ...map[string]any) *Context {
	c := &Context{values: make(map[string]any)}

	for _, layer := range layers {
		for _, k := range sortedKeys(layer) {
			existing, ok := c.values[k]
			if !ok {
				c.keys = append(c.keys, k)
				c.values[k] = normalize(layer[k])
				continue
			}
			c.values[k] = mergeValues(existing, normalize(layer[k]))
		}
	}

	return c
}

// PlatformDefaults returns the global default layer derived from platform
// detection: a "platform" map and an "env" map that merges the process
// environment with the platform's env overrides.
func PlatformDefaults(p *platform.Platform) map[string]any {
	env := make(map[string]any)

	for _, e := range os.Environ() {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}

	for k, v := range p.EnvVars {
		env[k] = v
	}

	return map[string]any{
		"platform": map[string]any{
			"os":       p.OS,
			"arch":     p.Arch,
			"distro":   p.Distro,
			"hostname": p.Hostname,
			"user":     p.User,
			"wsl":      p.IsWSL,
		},
		"env": env,
	}
}

// Extend returns a child scope in which bindings shadow the receiver's keys.
func (c *Context) Extend(bindings map[string]any) *Context {
	child := &Context{
		parent: c,
		values: make(map[string]any, len(bindings)),
	}

	for _, k := range sortedKeys(bindings) {
		child.keys = append(child.keys, k)
		child.values[k] = normalize(bindings[k])
	}

	return child
}

// ExtendMerged is Extend where a map binding is deep-merged onto the map
// already visible under the same key, the binding winning on conflicts.
func (c *Context) ExtendMerged(bindings map[string]any) *Context {
	merged := make(map[string]any, len(bindings))
	for k, v := range bindings {
		if cur, ok := c.Get(k); ok {
			v = mergeValues(cur, normalize(v))
		}
		merged[k] = v
	}

	return c.Extend(merged)
}

// With is Extend for a single binding.
func (c *Context) With(key string, value any) *Context {
	return c.Extend(map[string]any{key: value})
}

// Get returns the top-level value for key, searching enclosing scopes.
func (c *Context) Get(key string) (any, bool) {
	for s := c; s != nil; s = s.parent {
		if v, ok := s.values[key]; ok {
			return v, true
		}
	}

	return nil, false
}

// Lookup resolves a dot path such as "user.name" or "items.0". Lists also
// answer "length".
func (c *Context) Lookup(path string) (any, bool) {
	if c == nil || path == "" {
		return nil, false
	}

	segs := strings.Split(path, ".")
	root, ok := c.Get(segs[0])
	if !ok {
		return nil, false
	}

	return walk(root, segs[1:])
}

// Has reports whether path resolves.
func (c *Context) Has(path string) bool {
	_, ok := c.Lookup(path)
	return ok
}

// Keys returns the visible top-level keys, outermost scope first.
func (c *Context) Keys() []string {
	var chain []*Context
	for s := c; s != nil; s = s.parent {
		chain = append(chain, s)
	}

	seen := make(map[string]bool)
	var keys []string

	for i := len(chain) - 1; i >= 0; i-- {
		for _, k := range chain[i].keys {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	return keys
}

// Map flattens the visible scopes into a single map.
func (c *Context) Map() map[string]any {
	out := make(map[string]any)
	for _, k := range c.Keys() {
		v, _ := c.Get(k)
		out[k] = v
	}

	return out
}

func walk(v any, segs []string) (any, bool) {
	cur := v

	for _, seg := range segs {
		if seg == "" {
			return nil, false
		}

		switch t := cur.(type) {
		case map[string]any:
			next, ok := t[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			if seg == "length" {
				cur = len(t)
				continue
			}
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(t) {
				return nil, false
			}
			cur = t[i]
		default:
			return nil, false
		}
	}

	return cur, true
}

// normalize converts arbitrary maps and slices into map[string]any and []any,
// copying them so later changes by the caller are not observed.
func normalize(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int, int64, float64:
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case *Context:
		return t.Map()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes())
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = normalize(iter.Value().Interface())
		}
		return out
	default:
		return v
	}
}

func mergeValues(base, over any) any {
	bm, okBase := base.(map[string]any)
	om, okOver := over.(map[string]any)
	if !okBase || !okOver {
		return over
	}

	out := make(map[string]any, len(bm)+len(om))
	for k, v := range bm {
		out[k] = v
	}
	for k, v := range om {
		out[k] = mergeValues(out[k], v)
	}

	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return keys
}
