package template

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Sentinel errors for rendering.
var (
	// ErrPartialNotFound is returned by a PartialSource for unknown names.
	ErrPartialNotFound = errors.New("partial not found")

	// ErrPartialCycle aborts a render whose partials include themselves.
	ErrPartialCycle = errors.New("partial includes itself")
)

// HelperFunc is a function callable from a template directive.
type HelperFunc func(ctx *Context, args ...any) (string, error)

// HelperSource resolves helper names.
type HelperSource interface {
	Lookup(name string) (HelperFunc, bool)
}

// Partial is a named reusable fragment. Defaults overlay the ambient context
// while the partial renders.
type Partial struct {
	Name     string
	Content  string
	Defaults map[string]any
}

// PartialSource loads partials by name. It returns an error wrapping
// ErrPartialNotFound for unknown names.
type PartialSource interface {
	Partial(name string) (*Partial, error)
}

// Rendered is the output of a render together with every warning recorded
// while producing it.
type Rendered struct {
	Output   string
	Warnings []Warning
}

// Engine renders templates. It owns the helper and partial sources and a
// cache of parsed partials, so independently configured engines can coexist.
type Engine struct {
	helpers  HelperSource
	partials PartialSource

	mu    sync.RWMutex
	trees map[string]parsedPartial
}

type parsedPartial struct {
	tree     *Tree
	warnings []Warning
}

// NewEngine creates an engine. Either source may be nil.
func NewEngine(helpers HelperSource, partials PartialSource) *Engine {
	return &Engine{
		helpers:  helpers,
		partials: partials,
		trees:    make(map[string]parsedPartial),
	}
}

// Render evaluates text against ctx. Unresolved or malformed directives are
// left in the output and reported as warnings; the only error is a partial
// cycle, which wraps ErrPartialCycle.
func (e *Engine) Render(name, text string, ctx *Context) (Rendered, error) {
	tree, warnings := Parse(name, text)

	r := &renderer{engine: e, name: name, warnings: warnings, parsed: make(map[string]bool)}
	var out strings.Builder
	if err := r.walk(tree.Nodes, ctx, &out); err != nil {
		return Rendered{Output: out.String(), Warnings: r.warnings}, err
	}

	return Rendered{Output: out.String(), Warnings: r.warnings}, nil
}

// RenderString renders text and returns only the output.
func (e *Engine) RenderString(name, text string, ctx *Context) (string, error) {
	res, err := e.Render(name, text, ctx)
	if err != nil {
		return "", err
	}

	return res.Output, nil
}

// Interpolate substitutes variable directives only; every other directive is
// kept as literal text.
func (e *Engine) Interpolate(name, text string, ctx *Context) Rendered {
	tree := parseVariables(name, text)

	r := &renderer{engine: e, name: name, parsed: make(map[string]bool)}
	var out strings.Builder
	// variable-only trees cannot reach a partial, so walk cannot fail
	_ = r.walk(tree.Nodes, ctx, &out)

	return Rendered{Output: out.String(), Warnings: r.warnings}
}

// ClearCache drops every parsed partial.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trees = make(map[string]parsedPartial)
}

// partialTree returns the parsed partial, reparsing when its source changed.
func (e *Engine) partialTree(p *Partial) (*Tree, []Warning) {
	e.mu.RLock()
	cached, ok := e.trees[p.Name]
	e.mu.RUnlock()
	if ok && cached.tree.Source == p.Content {
		return cached.tree, cached.warnings
	}

	t, warnings := Parse(p.Name, p.Content)

	e.mu.Lock()
	e.trees[p.Name] = parsedPartial{tree: t, warnings: warnings}
	e.mu.Unlock()

	return t, warnings
}

type renderer struct {
	engine   *Engine
	name     string
	stack    []string
	warnings []Warning
	parsed   map[string]bool
}

func (r *renderer) current() string {
	if n := len(r.stack); n > 0 {
		return r.stack[n-1]
	}

	return r.name
}

func (r *renderer) warn(kind WarningKind, pos Pos, raw, msg string) {
	r.warnings = append(r.warnings, Warning{
		Kind:      kind,
		Template:  r.current(),
		Directive: raw,
		Pos:       pos,
		Message:   msg,
	})
}

func (r *renderer) walk(nodes []Node, ctx *Context, w *strings.Builder) error {
	for _, n := range nodes {
		var err error

		switch n := n.(type) {
		case TextNode:
			w.WriteString(n.Text)
		case VariableNode:
			r.variable(n, ctx, w)
		case HelperNode:
			r.helper(n, ctx, w)
		case IfNode:
			err = r.conditional(n, ctx, w)
		case EachNode:
			err = r.each(n, ctx, w)
		case PartialNode:
			err = r.partial(n, ctx, w)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func (r *renderer) variable(n VariableNode, ctx *Context, w *strings.Builder) {
	if v, ok := ctx.Lookup(n.Path); ok {
		w.WriteString(Stringify(v))
		return
	}

	if !strings.Contains(n.Path, ".") {
		if fn, ok := r.lookupHelper(n.Path); ok {
			r.call(fn, n.Path, n.Pos, n.Raw, ctx, nil, w)
			return
		}
	}

	r.warn(WarnUnresolvedVariable, n.Pos, n.Raw, "unresolved variable "+n.Path)
	w.WriteString(n.Raw)
}

func (r *renderer) helper(n HelperNode, ctx *Context, w *strings.Builder) {
	fn, ok := r.lookupHelper(n.Name)
	if !ok {
		r.warn(WarnUnknownHelper, n.Pos, n.Raw, "unknown helper "+n.Name)
		w.WriteString(n.Raw)
		return
	}

	args := make([]any, len(n.Args))
	for i, a := range n.Args {
		args[i] = r.operand(a, n.Pos, n.Raw, ctx)
	}

	r.call(fn, n.Name, n.Pos, n.Raw, ctx, args, w)
}

func (r *renderer) call(fn HelperFunc, name string, pos Pos, raw string, ctx *Context, args []any, w *strings.Builder) {
	out, err := fn(ctx, args...)
	if err != nil {
		r.warn(WarnHelperFailed, pos, raw, fmt.Sprintf("helper %s: %v", name, err))
		w.WriteString(raw)
		return
	}

	w.WriteString(out)
}

func (r *renderer) lookupHelper(name string) (HelperFunc, bool) {
	if r.engine.helpers == nil {
		return nil, false
	}

	return r.engine.helpers.Lookup(name)
}

// operand resolves a helper argument. Unresolved paths yield nil and a
// warning.
func (r *renderer) operand(a Arg, pos Pos, raw string, ctx *Context) any {
	if !a.IsPath {
		return a.Literal
	}

	v, ok := ctx.Lookup(a.Path)
	if !ok {
		r.warn(WarnUnresolvedVariable, pos, raw, "unresolved argument "+a.Path)
	}

	return v
}

// eval reports whether a condition holds. Unresolved paths are warned about
// and count as falsy; a comparison with an unresolved side never holds.
func (r *renderer) eval(n IfNode, ctx *Context) bool {
	left, okLeft := r.condOperand(n.Cond.Left, n, ctx)

	var result bool
	switch n.Cond.Op {
	case "!":
		result = !Truthy(left)
	case "===", "!==":
		right, okRight := r.condOperand(n.Cond.Right, n, ctx)
		if okLeft && okRight {
			result = StrictEqual(left, right) == (n.Cond.Op == "===")
		}
	default:
		result = Truthy(left)
	}

	if n.Negate {
		return !result
	}

	return result
}

func (r *renderer) condOperand(a Arg, n IfNode, ctx *Context) (any, bool) {
	if !a.IsPath {
		return a.Literal, true
	}

	v, ok := ctx.Lookup(a.Path)
	if !ok {
		r.warn(WarnUnresolvedVariable, n.Pos, n.Raw, "unresolved variable "+a.Path+" in condition")
	}

	return v, ok
}

func (r *renderer) conditional(n IfNode, ctx *Context, w *strings.Builder) error {
	if r.eval(n, ctx) {
		return r.walk(n.Then, ctx, w)
	}

	return r.walk(n.Else, ctx, w)
}

func (r *renderer) each(n EachNode, ctx *Context, w *strings.Builder) error {
	v, ok := ctx.Lookup(n.Path)
	list, isList := v.([]any)
	if !ok || !isList {
		r.warn(WarnNotAList, n.Pos, n.Raw, fmt.Sprintf("#each target %s is not a list", n.Path))
		return nil
	}

	for i, el := range list {
		bindings := map[string]any{
			n.Item:  el,
			"first": i == 0,
			"last":  i == len(list)-1,
		}
		if n.Index != "" {
			bindings[n.Index] = i
		}

		if err := r.walk(n.Body, ctx.Extend(bindings), w); err != nil {
			return err
		}
	}

	return nil
}

func (r *renderer) partial(n PartialNode, ctx *Context, w *strings.Builder) error {
	if slices.Contains(r.stack, n.Name) {
		chain := append(slices.Clone(r.stack), n.Name)
		return fmt.Errorf("%w: %s", ErrPartialCycle, strings.Join(chain, " -> "))
	}

	p, err := r.loadPartial(n.Name)
	if err != nil {
		r.warn(WarnUnknownPartial, n.Pos, n.Raw, err.Error())
		w.WriteString(missingPartial(n.Name))
		return nil
	}

	tree, warnings := r.engine.partialTree(p)
	if !r.parsed[p.Name] {
		r.parsed[p.Name] = true
		r.warnings = append(r.warnings, warnings...)
	}

	r.stack = append(r.stack, n.Name)
	defer func() { r.stack = r.stack[:len(r.stack)-1] }()

	return r.walk(tree.Nodes, ctx.ExtendMerged(p.Defaults), w)
}

func (r *renderer) loadPartial(name string) (*Partial, error) {
	if r.engine.partials == nil {
		return nil, fmt.Errorf("%w: %s", ErrPartialNotFound, name)
	}

	return r.engine.partials.Partial(name)
}

func missingPartial(name string) string {
	return "[[missing partial: " + name + "]]"
}
