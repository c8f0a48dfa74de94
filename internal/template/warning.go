package template

import "fmt"

// WarningKind classifies a recoverable rendering problem.
type WarningKind string

// Warning kinds.
const (
	WarnSyntax             WarningKind = "syntax"
	WarnUnresolvedVariable WarningKind = "unresolved-variable"
	WarnUnknownHelper      WarningKind = "unknown-helper"
	WarnHelperFailed       WarningKind = "helper-failed"
	WarnUnknownPartial     WarningKind = "unknown-partial"
	WarnNotAList           WarningKind = "not-a-list"
	WarnMissingKey         WarningKind = "missing-key"
)

// Warning is a recoverable problem recorded while rendering. The directive
// that caused it is left verbatim in the output.
type Warning struct {
	Kind      WarningKind
	Template  string
	Directive string
	Pos       Pos
	Message   string
}

func (w Warning) String() string {
	if w.Pos.Line == 0 {
		return fmt.Sprintf("%s: %s", w.Template, w.Message)
	}

	return fmt.Sprintf("%s:%s: %s", w.Template, w.Pos, w.Message)
}
