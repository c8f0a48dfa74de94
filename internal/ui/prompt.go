package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/AntoineGS/tidygen/internal/conflict"
)

// ErrAborted is returned by ConflictPrompt when the user quits the prompt.
var ErrAborted = errors.New("conflict prompt aborted")

// PromptModel asks what to do about one conflict.
type PromptModel struct {
	conflict conflict.Conflict
	keys     PromptKeyMap
	action   conflict.Action
	showDiff bool
	all      bool
	aborted  bool
}

// NewPromptModel creates the prompt for c.
func NewPromptModel(c conflict.Conflict) PromptModel {
	return PromptModel{conflict: c, keys: PromptKeys}
}

// Init implements tea.Model.
func (m PromptModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m PromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	choose := func(a conflict.Action, all bool) (tea.Model, tea.Cmd) {
		m.action = a
		m.all = all
		return m, tea.Quit
	}

	switch {
	case key.Matches(keyMsg, m.keys.Quit):
		m.aborted = true
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.Diff):
		m.showDiff = !m.showDiff
		return m, nil
	case key.Matches(keyMsg, m.keys.Overwrite):
		return choose(conflict.Overwrite, false)
	case key.Matches(keyMsg, m.keys.Skip):
		return choose(conflict.Skip, false)
	case key.Matches(keyMsg, m.keys.Rename):
		return choose(conflict.Rename, false)
	case key.Matches(keyMsg, m.keys.OverwriteAll):
		return choose(conflict.Overwrite, true)
	case key.Matches(keyMsg, m.keys.SkipAll):
		return choose(conflict.Skip, true)
	case key.Matches(keyMsg, m.keys.RenameAll):
		return choose(conflict.Rename, true)
	}

	return m, nil
}

// View implements tea.Model.
func (m PromptModel) View() string {
	if m.action != "" || m.aborted {
		return ""
	}

	var b strings.Builder

	b.WriteString(WarningStyle.Render(fmt.Sprintf("%s already exists", m.conflict.Path)))
	if m.conflict.TemplateID != "" {
		b.WriteString(MutedTextStyle.Render(" (from " + m.conflict.TemplateID + ")"))
	}
	b.WriteString("\n\n")

	if m.showDiff {
		b.WriteString(RenderDiff(m.conflict.Diff()))
		b.WriteString("\n\n")
	}

	b.WriteString(RenderHelp(
		"o", "overwrite",
		"s", "skip",
		"r", "rename",
		"d", "diff",
		"O/S/R", "all",
		"q", "abort",
	))
	b.WriteString("\n")

	return b.String()
}

// Decision returns the chosen decision and whether it applies to every
// remaining conflict.
func (m PromptModel) Decision() (conflict.Decision, bool) {
	return conflict.Decision{Action: m.action}, m.all
}

// Aborted reports whether the user quit without choosing.
func (m PromptModel) Aborted() bool {
	return m.aborted
}

// ConflictPrompt is a conflict.Hook that asks on a terminal. An "all" answer
// is reused for every later conflict without asking.
type ConflictPrompt struct {
	in     io.Reader
	out    io.Writer
	sticky conflict.Action
	mu     sync.Mutex
}

// NewConflictPrompt creates a prompt reading keys from in and drawing to out.
func NewConflictPrompt(in io.Reader, out io.Writer) *ConflictPrompt {
	return &ConflictPrompt{in: in, out: out}
}

// OnConflict implements conflict.Hook.
func (p *ConflictPrompt) OnConflict(c conflict.Conflict) (conflict.Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sticky != "" {
		return conflict.Decision{Action: p.sticky}, nil
	}

	prog := tea.NewProgram(NewPromptModel(c), tea.WithInput(p.in), tea.WithOutput(p.out))
	final, err := prog.Run()
	if err != nil {
		return conflict.Decision{}, fmt.Errorf("running conflict prompt: %w", err)
	}

	m, ok := final.(PromptModel)
	if !ok || m.Aborted() {
		return conflict.Decision{}, ErrAborted
	}

	d, all := m.Decision()
	if all {
		p.sticky = d.Action
	}

	return d, nil
}
