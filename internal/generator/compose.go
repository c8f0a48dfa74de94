package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AntoineGS/tidygen/internal/config"
	tmpl "github.com/AntoineGS/tidygen/internal/template"
)

// Stage is one pipeline of a composition. A non-empty When is rendered
// against the shared input and the stage runs only when it yields "true".
type Stage struct {
	Pipeline *Pipeline
	When     string
}

// Composite runs stages in order against one input.
type Composite struct {
	engine *tmpl.Engine
	logger *slog.Logger
	stages []Stage
}

// Compose creates a Composite. engine renders the stages' When expressions.
func Compose(engine *tmpl.Engine, stages ...Stage) *Composite {
	return &Composite{
		engine: engine,
		logger: slog.Default(),
		stages: stages,
	}
}

// WithLogger sets a custom logger
func (c *Composite) WithLogger(logger *slog.Logger) *Composite {
	c.logger = logger
	return c
}

// Run runs each enabled stage and concatenates their summaries. An error
// from a stage stops the stages after it.
func (c *Composite) Run(ctx context.Context, vars *tmpl.Context) (*Summary, error) {
	total := &Summary{}
	renderer := whenRenderer{engine: c.engine, vars: vars}

	for _, st := range c.stages {
		name := st.Pipeline.Options().Stage
		enabled, err := config.StageEnabled(name, st.When, renderer)
		if err != nil {
			c.logger.Warn("stage disabled", slog.String("stage", name), slog.String("error", err.Error()))
			continue
		}
		if !enabled {
			c.logger.Info("stage disabled by when", slog.String("stage", name))
			continue
		}

		sum, err := st.Pipeline.Run(ctx, vars)
		total.Merge(sum)
		if err != nil {
			return total, fmt.Errorf("stage %s: %w", name, err)
		}
	}

	return total, nil
}

// Cleanup removes what every stage wrote in its last run, latest stage
// first, and returns the removed paths.
func (c *Composite) Cleanup() ([]string, error) {
	var removed []string
	var errs []error

	for i := len(c.stages) - 1; i >= 0; i-- {
		paths, err := c.stages[i].Pipeline.Cleanup()
		removed = append(removed, paths...)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return removed, errors.Join(errs...)
}

type whenRenderer struct {
	engine *tmpl.Engine
	vars   *tmpl.Context
}

func (r whenRenderer) RenderString(name, text string) (string, error) {
	if r.engine == nil {
		return "", fmt.Errorf("no engine to render %s", name)
	}

	return r.engine.RenderString(name, text, r.vars)
}
