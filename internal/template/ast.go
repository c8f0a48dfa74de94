package template

import "fmt"

// Node is an element of a parsed template.
type Node interface {
	node()
}

// Pos is a 1-based line and column in the template source.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Tree is a parsed template.
type Tree struct {
	Name   string
	Source string
	Nodes  []Node
}

// TextNode is literal output.
type TextNode struct {
	Text string
}

// VariableNode is {{path.to.value}}.
type VariableNode struct {
	Pos
	Raw  string
	Path string
}

// HelperNode is {{name arg1 arg2}}.
type HelperNode struct {
	Pos
	Raw  string
	Name string
	Args []Arg
}

// PartialNode is {{> name}}.
type PartialNode struct {
	Pos
	Raw  string
	Name string
}

// IfNode is an {{#if}} block, or an {{#unless}} block when Negate is set.
type IfNode struct {
	Pos
	Raw    string
	Negate bool
	Cond   Expr
	Then   []Node
	Else   []Node
}

// EachNode is {{#each path as item index}}.
type EachNode struct {
	Pos
	Raw   string
	Path  string
	Item  string
	Index string
	Body  []Node
}

// Arg is a helper argument or a comparison operand: either a literal or a
// context path.
type Arg struct {
	Path    string
	Literal any
	IsPath  bool
}

// Expr is a condition: a bare operand, a negated operand, or a comparison.
type Expr struct {
	Op    string // "", "!", "===", "!=="
	Left  Arg
	Right Arg
}

func (TextNode) node()     {}
func (VariableNode) node() {}
func (HelperNode) node()   {}
func (PartialNode) node()  {}
func (IfNode) node()       {}
func (EachNode) node()     {}
