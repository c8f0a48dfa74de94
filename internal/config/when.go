package config

import (
	"fmt"
	"strings"
)

// Renderer renders a one-off template string. The template engine satisfies
// it; config does not import the engine.
type Renderer interface {
	RenderString(name, text string) (string, error)
}

// StageEnabled reports whether a stage gated by when should run. A blank
// expression always runs; otherwise the rendered text, trimmed, must be
// exactly "true". A stage whose expression cannot be rendered does not run,
// and the error says why.
func StageEnabled(stage, when string, r Renderer) (bool, error) {
	if strings.TrimSpace(when) == "" {
		return true, nil
	}

	if r == nil {
		return false, fmt.Errorf("%w: stage %s: no renderer", ErrWhen, stage)
	}

	out, err := r.RenderString("when:"+stage, when)
	if err != nil {
		return false, fmt.Errorf("%w: stage %s: %w", ErrWhen, stage, err)
	}

	return strings.TrimSpace(out) == "true", nil
}
