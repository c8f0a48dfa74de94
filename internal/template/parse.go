package template

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

const (
	leftDelim  = "{{"
	rightDelim = "}}"
)

// DirectiveIndex returns the offset of the first unescaped opening delimiter
// in s, or -1.
func DirectiveIndex(s string) int {
	for i := 0; ; {
		rel := strings.Index(s[i:], leftDelim)
		if rel == -1 {
			return -1
		}
		at := i + rel
		if at == 0 || s[at-1] != '\\' {
			return at
		}
		i = at + len(leftDelim)
	}
}

// Parse builds the node tree for src. It never fails: malformed directives
// become literal text and are reported as syntax warnings.
func Parse(name, src string) (*Tree, []Warning) {
	p := &parser{name: name, src: src, line: 1}
	nodes, _, _ := p.parseNodes(nil, false)

	return &Tree{Name: name, Source: src, Nodes: nodes}, p.warnings
}

// parseVariables parses src recognizing only variable directives. Everything
// else stays literal and produces no warning.
func parseVariables(name, src string) *Tree {
	p := &parser{name: name, src: src, line: 1, varsOnly: true}
	nodes, _, _ := p.parseNodes(nil, false)

	return &Tree{Name: name, Source: src, Nodes: nodes}
}

type parser struct {
	name     string
	src      string
	i        int
	varsOnly bool
	warnings []Warning

	// position tracking; offsets are only ever queried in increasing order
	scanned   int
	line      int
	lineStart int
}

func (p *parser) position(off int) Pos {
	for ; p.scanned < off; p.scanned++ {
		if p.src[p.scanned] == '\n' {
			p.line++
			p.lineStart = p.scanned + 1
		}
	}

	return Pos{Line: p.line, Col: off - p.lineStart + 1}
}

func (p *parser) warn(pos Pos, raw, msg string) {
	p.warnings = append(p.warnings, Warning{
		Kind:      WarnSyntax,
		Template:  p.name,
		Directive: raw,
		Pos:       pos,
		Message:   msg,
	})
}

// parseNodes consumes source until EOF or a closing directive. open lists the
// enclosing block kinds, innermost last. It returns the closer it stopped at
// and whether that closer was consumed; a closer that belongs to an outer
// block is left in place for the caller.
func (p *parser) parseNodes(open []string, allowElse bool) ([]Node, string, bool) {
	var nodes []Node
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			nodes = append(nodes, TextNode{Text: text.String()})
			text.Reset()
		}
	}

	for p.i < len(p.src) {
		rel := strings.Index(p.src[p.i:], leftDelim)
		if rel == -1 {
			text.WriteString(p.src[p.i:])
			p.i = len(p.src)
			break
		}

		start := p.i + rel
		if start > 0 && p.src[start-1] == '\\' {
			text.WriteString(p.src[p.i : start-1])
			text.WriteString(leftDelim)
			p.i = start + len(leftDelim)
			continue
		}
		text.WriteString(p.src[p.i:start])

		end := strings.Index(p.src[start+len(leftDelim):], rightDelim)
		if end == -1 {
			if !p.varsOnly {
				p.warn(p.position(start), p.src[start:], "unterminated directive")
			}
			text.WriteString(p.src[start:])
			p.i = len(p.src)
			break
		}

		rawEnd := start + len(leftDelim) + end + len(rightDelim)
		raw := p.src[start:rawEnd]
		inner := strings.TrimSpace(p.src[start+len(leftDelim) : start+len(leftDelim)+end])
		pos := p.position(start)

		if p.varsOnly {
			if fields, ok := splitArgs(inner); ok && len(fields) == 1 && isPath(fields[0]) {
				flush()
				nodes = append(nodes, VariableNode{Pos: pos, Raw: raw, Path: fields[0]})
			} else {
				text.WriteString(raw)
			}
			p.i = rawEnd
			continue
		}

		switch {
		case strings.HasPrefix(inner, "/"):
			kind := strings.TrimSpace(inner[1:])
			if n := len(open); n > 0 && open[n-1] == kind {
				p.i = rawEnd
				flush()
				return nodes, kind, true
			}
			if slices.Contains(open, kind) {
				p.i = start
				flush()
				return nodes, kind, false
			}
			p.warn(pos, raw, "unexpected "+raw)
			text.WriteString(raw)
			p.i = rawEnd

		case inner == "else":
			p.i = rawEnd
			if allowElse {
				flush()
				return nodes, "else", true
			}
			p.warn(pos, raw, "{{else}} outside of a conditional block")
			text.WriteString(raw)

		case strings.HasPrefix(inner, "!"):
			// comment
			p.i = rawEnd

		case strings.HasPrefix(inner, "#"):
			p.i = rawEnd
			flush()
			nodes = append(nodes, p.parseBlock(inner[1:], raw, pos, open)...)

		case strings.HasPrefix(inner, ">"):
			p.i = rawEnd
			name := unquote(strings.TrimSpace(inner[1:]))
			if name == "" || strings.ContainsFunc(name, unicode.IsSpace) {
				p.warn(pos, raw, "malformed partial reference")
				text.WriteString(raw)
				continue
			}
			flush()
			nodes = append(nodes, PartialNode{Pos: pos, Raw: raw, Name: name})

		default:
			p.i = rawEnd
			fields, ok := splitArgs(inner)
			switch {
			case !ok:
				p.warn(pos, raw, "unterminated string in directive")
				text.WriteString(raw)
			case len(fields) == 0:
				p.warn(pos, raw, "empty directive")
				text.WriteString(raw)
			case len(fields) == 1:
				flush()
				nodes = append(nodes, VariableNode{Pos: pos, Raw: raw, Path: fields[0]})
			default:
				args := make([]Arg, 0, len(fields)-1)
				for _, f := range fields[1:] {
					args = append(args, parseArg(f))
				}
				flush()
				nodes = append(nodes, HelperNode{Pos: pos, Raw: raw, Name: fields[0], Args: args})
			}
		}
	}

	flush()

	return nodes, "", false
}

// parseBlock parses a block after its opening tag. When the block is
// malformed or never closed it yields the opening tag as text followed by
// whatever body was parsed.
func (p *parser) parseBlock(header, raw string, pos Pos, open []string) []Node {
	kind, rest, _ := strings.Cut(header, " ")
	kind = strings.TrimSpace(kind)
	rest = strings.TrimSpace(rest)
	inner := append(slices.Clip(open), kind)

	switch kind {
	case "if", "unless":
		cond, ok := parseExpr(rest)
		if !ok {
			p.warn(pos, raw, fmt.Sprintf("malformed #%s condition %q", kind, rest))
			return []Node{TextNode{Text: raw}}
		}

		then, closer, closed := p.parseNodes(inner, true)
		var els []Node
		hasElse := closed && closer == "else"
		if hasElse {
			els, _, closed = p.parseNodes(inner, false)
		}

		if !closed {
			p.warn(pos, raw, fmt.Sprintf("unclosed #%s block", kind))
			out := append([]Node{TextNode{Text: raw}}, then...)
			if hasElse {
				out = append(out, TextNode{Text: leftDelim + "else" + rightDelim})
				out = append(out, els...)
			}
			return out
		}

		return []Node{IfNode{Pos: pos, Raw: raw, Negate: kind == "unless", Cond: cond, Then: then, Else: els}}

	case "each":
		path, item, index, ok := parseEachHeader(rest)
		if !ok {
			p.warn(pos, raw, fmt.Sprintf("malformed #each header %q", rest))
			return []Node{TextNode{Text: raw}}
		}

		body, _, closed := p.parseNodes(inner, false)
		if !closed {
			p.warn(pos, raw, "unclosed #each block")
			return append([]Node{TextNode{Text: raw}}, body...)
		}

		return []Node{EachNode{Pos: pos, Raw: raw, Path: path, Item: item, Index: index, Body: body}}

	default:
		p.warn(pos, raw, fmt.Sprintf("unknown block #%s", kind))
		return []Node{TextNode{Text: raw}}
	}
}

// parseEachHeader accepts "path", "path as item" and "path as item index".
// Without an as clause the bindings are named item and index.
func parseEachHeader(s string) (path, item, index string, ok bool) {
	fields, ok := splitArgs(s)
	if !ok {
		return "", "", "", false
	}

	switch {
	case len(fields) == 1 && isPath(fields[0]):
		return fields[0], "item", "index", true
	case len(fields) == 3 && fields[1] == "as" && isPath(fields[0]) && isIdent(fields[2]):
		return fields[0], fields[2], "", true
	case len(fields) == 4 && fields[1] == "as" && isPath(fields[0]) && isIdent(fields[2]) && isIdent(fields[3]):
		return fields[0], fields[2], fields[3], true
	default:
		return "", "", "", false
	}
}

func parseExpr(s string) (Expr, bool) {
	fields, ok := splitArgs(s)
	if !ok {
		return Expr{}, false
	}

	switch len(fields) {
	case 1:
		tok := fields[0]
		if strings.HasPrefix(tok, "!") && len(tok) > 1 {
			return Expr{Op: "!", Left: parseArg(tok[1:])}, true
		}
		return Expr{Left: parseArg(tok)}, true
	case 2:
		if fields[0] == "!" {
			return Expr{Op: "!", Left: parseArg(fields[1])}, true
		}
	case 3:
		switch fields[1] {
		case "===", "==":
			return Expr{Op: "===", Left: parseArg(fields[0]), Right: parseArg(fields[2])}, true
		case "!==", "!=":
			return Expr{Op: "!==", Left: parseArg(fields[0]), Right: parseArg(fields[2])}, true
		}
	}

	return Expr{}, false
}

// parseArg classifies a token as a quoted string, number, true/false/null or
// a context path.
func parseArg(tok string) Arg {
	if n := len(tok); n >= 2 {
		switch {
		case tok[0] == '"' && tok[n-1] == '"':
			s, err := strconv.Unquote(tok)
			if err != nil {
				s = tok[1 : n-1]
			}
			return Arg{Literal: s}
		case tok[0] == '\'' && tok[n-1] == '\'':
			return Arg{Literal: tok[1 : n-1]}
		}
	}

	switch tok {
	case "true":
		return Arg{Literal: true}
	case "false":
		return Arg{Literal: false}
	case "null":
		return Arg{Literal: nil}
	}

	if looksNumeric(tok) {
		if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
			return Arg{Literal: int(n)}
		}
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			return Arg{Literal: f}
		}
	}

	return Arg{Path: tok, IsPath: true}
}

func looksNumeric(tok string) bool {
	if tok == "" {
		return false
	}
	c := tok[0]
	if c == '-' || c == '+' || c == '.' {
		return len(tok) > 1 && (unicode.IsDigit(rune(tok[1])) || tok[1] == '.')
	}

	return unicode.IsDigit(rune(c))
}

// splitArgs splits on whitespace, keeping quoted strings (with their quotes)
// as single tokens. ok is false for an unterminated quote.
func splitArgs(s string) ([]string, bool) {
	var fields []string
	var cur strings.Builder
	var quote byte
	inToken := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if quote != 0 {
			cur.WriteByte(c)
			if c == '\\' && quote == '"' && i+1 < len(s) {
				i++
				cur.WriteByte(s[i])
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if inToken {
				fields = append(fields, cur.String())
				cur.Reset()
				inToken = false
			}
		case c == '"' || c == '\'':
			quote = c
			inToken = true
			cur.WriteByte(c)
		default:
			inToken = true
			cur.WriteByte(c)
		}
	}

	if quote != 0 {
		return nil, false
	}
	if inToken {
		fields = append(fields, cur.String())
	}

	return fields, true
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}

	return true
}

func isPath(s string) bool {
	if s == "" {
		return false
	}
	for _, seg := range strings.Split(s, ".") {
		if seg == "" {
			return false
		}
		for _, r := range seg {
			if r != '_' && r != '-' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				return false
			}
		}
	}

	return true
}

func unquote(s string) string {
	if n := len(s); n >= 2 && (s[0] == '"' && s[n-1] == '"' || s[0] == '\'' && s[n-1] == '\'') {
		return s[1 : n-1]
	}

	return s
}
