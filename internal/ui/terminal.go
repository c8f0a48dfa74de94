package ui

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether both stdin and stdout are attached to a
// terminal, which the conflict prompt needs.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) //nolint:gosec // fd fits in int
}
