package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AntoineGS/tidygen/internal/config"
	"github.com/AntoineGS/tidygen/internal/conflict"
	"github.com/AntoineGS/tidygen/internal/generator"
	"github.com/AntoineGS/tidygen/internal/state"
	tmpl "github.com/AntoineGS/tidygen/internal/template"
	"github.com/AntoineGS/tidygen/internal/ui"
)

type generateFlags struct {
	varsFile  string
	conflict  string
	sets      []string
	overwrite bool
	backup    bool
	validate  bool
	strict    bool
	failFast  bool
	dryRun    bool
	rollback  bool
}

var gen generateFlags

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Render every template into the output tree",
		Long: `Render every template of each enabled stage and write the results.

Variables come from platform detection, the app and project defaults, the
--vars file (YAML, JSON or TOML) and --set key=value pairs, later sources
winning. Existing files are skipped unless the conflict policy says otherwise.`,
		Args: cobra.NoArgs,
		RunE: runGenerate,
	}

	addVarFlags(cmd)
	cmd.Flags().StringVar(&gen.conflict, "conflict", "", "Conflict policy: skip, overwrite, rename or prompt")
	cmd.Flags().BoolVar(&gen.overwrite, "overwrite", false, "Overwrite existing files without asking")
	cmd.Flags().BoolVar(&gen.backup, "backup", true, "Back up files before overwriting them")
	cmd.Flags().BoolVar(&gen.validate, "validate", true, "Check generated JSON, YAML, TOML and source files")
	cmd.Flags().BoolVar(&gen.strict, "strict", false, "Fail files whose render produced warnings")
	cmd.Flags().BoolVar(&gen.failFast, "fail-fast", false, "Stop at the first failed file")
	cmd.Flags().BoolVarP(&gen.dryRun, "dry-run", "n", false, "Show what would be written without changing anything")
	cmd.Flags().BoolVar(&gen.rollback, "rollback", false, "Delete this run's files when any file fails")

	return cmd
}

func addVarFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&gen.varsFile, "vars", "", "Variables file (YAML, JSON or TOML)")
	cmd.Flags().StringArrayVar(&gen.sets, "set", nil, "Set a variable, e.g. --set app.name=shop (repeatable)")
}

// applyFlags overrides stage settings with flags given on the command line.
// The app config's conflict policy replaces the built-in default only.
func applyFlags(cmd *cobra.Command, app *config.AppConfig, s config.Settings) config.Settings {
	flags := cmd.Flags()

	if flags.Changed("conflict") {
		s.Conflict = gen.conflict
	} else if app.Conflict != "" && s.Conflict == config.DefaultConfig().Conflict {
		s.Conflict = app.Conflict
	}
	if flags.Changed("overwrite") {
		s.Overwrite = gen.overwrite
	}
	if flags.Changed("backup") {
		s.Backup = gen.backup
	}
	if flags.Changed("validate") {
		s.Validate = gen.validate
	}
	if flags.Changed("strict") {
		s.Strict = gen.strict
	}
	if flags.Changed("fail-fast") {
		s.FailFast = gen.failFast
	}

	return s
}

// conflictHooks builds hooks from policy names, sharing one terminal prompt
// so an "all" answer carries across stages.
type conflictHooks struct {
	prompt *ui.ConflictPrompt
}

func (h *conflictHooks) forPolicy(policy string) (conflict.Hook, error) {
	if policy == "prompt" {
		if !ui.IsTerminal() {
			slog.Warn("conflict prompt needs a terminal, skipping conflicts instead")
			return conflict.SkipHook, nil
		}
		if h.prompt == nil {
			h.prompt = ui.NewConflictPrompt(os.Stdin, os.Stdout)
		}
		return h.prompt, nil
	}

	a, err := conflict.ParseAction(policy)
	if err != nil {
		return nil, err
	}

	return conflict.HookFor(a), nil
}

// buildComposite creates one pipeline per stage of p. configure, when set,
// runs on every pipeline before it is added.
func buildComposite(cmd *cobra.Command, p *project, history *state.Store, dryRun bool, configure func(*generator.Pipeline)) (*generator.Composite, error) {
	hooks := &conflictHooks{}
	stages := make([]generator.Stage, 0, len(p.stages))

	for _, s := range p.stages {
		s = applyFlags(cmd, p.app, s)

		hook, err := hooks.forPolicy(s.Conflict)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", s.Name, err)
		}

		st := p.store(s)
		pipe := generator.New(p.fs, st, tmpl.NewEngine(p.registry, st), generator.Options{
			Defaults:   s.Defaults,
			Stage:      s.Name,
			OutputRoot: s.OutputRoot,
			Overwrite:  s.Overwrite,
			Backup:     s.Backup,
			Validate:   s.Validate,
			Strict:     s.Strict,
			FailFast:   s.FailFast,
			DryRun:     dryRun,
		}).WithLogger(slog.Default())
		if history != nil {
			pipe.WithHistory(history)
		}
		pipe.Hooks().OnConflict = hook
		if configure != nil {
			configure(pipe)
		}

		stages = append(stages, generator.Stage{Pipeline: pipe, When: s.When})
	}

	return generator.Compose(tmpl.NewEngine(p.registry, nil), stages...).WithLogger(slog.Default()), nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}

	vars, err := p.variables(gen.varsFile, gen.sets)
	if err != nil {
		return err
	}

	history := p.openHistory()
	if history != nil {
		defer history.Close() //nolint:errcheck // best-effort cleanup
	}

	comp, err := buildComposite(cmd, p, history, gen.dryRun, nil)
	if err != nil {
		return err
	}

	if gen.dryRun {
		fmt.Println("=== DRY RUN MODE ===")
	}

	var sum *generator.Summary
	runErr := runWithCancellation(func(ctx context.Context) error {
		var err error
		sum, err = comp.Run(ctx, vars)
		return err
	})

	fmt.Print(ui.RenderSummary(sum))

	if gen.rollback && (runErr != nil || sum.Failed > 0) {
		removed, cleanupErr := comp.Cleanup()
		fmt.Printf("Rolled back %d file(s)\n", len(removed))
		runErr = errors.Join(runErr, cleanupErr)
	}

	if runErr != nil {
		return runErr
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d file(s) failed", sum.Failed)
	}

	return nil
}
