package ui

import "github.com/charmbracelet/bubbles/key"

// PromptKeyMap defines keybindings for the conflict prompt.
type PromptKeyMap struct {
	Overwrite    key.Binding
	Skip         key.Binding
	Rename       key.Binding
	OverwriteAll key.Binding
	SkipAll      key.Binding
	RenameAll    key.Binding
	Diff         key.Binding
	Quit         key.Binding
}

// PromptKeys are the keybindings for the conflict prompt.
var PromptKeys = PromptKeyMap{
	Overwrite: key.NewBinding(
		key.WithKeys("o"),
		key.WithHelp("o", "overwrite"),
	),
	Skip: key.NewBinding(
		key.WithKeys("s", "enter"),
		key.WithHelp("s", "skip"),
	),
	Rename: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "rename"),
	),
	OverwriteAll: key.NewBinding(
		key.WithKeys("O"),
		key.WithHelp("O", "overwrite all"),
	),
	SkipAll: key.NewBinding(
		key.WithKeys("S"),
		key.WithHelp("S", "skip all"),
	),
	RenameAll: key.NewBinding(
		key.WithKeys("R"),
		key.WithHelp("R", "rename all"),
	),
	Diff: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "diff"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "q", "esc"),
		key.WithHelp("q", "abort"),
	),
}
