package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AntoineGS/tidygen/internal/conflict"
	"github.com/AntoineGS/tidygen/internal/generator"
	"github.com/AntoineGS/tidygen/internal/helpers"
	tmpl "github.com/AntoineGS/tidygen/internal/template"
	"github.com/AntoineGS/tidygen/internal/ui"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Render and validate every template without writing",
		Long: `Render every template as generate would, report warnings and missing
required variables, and check that JSON, YAML, TOML and source output is
well formed. Nothing is written.`,
		Args: cobra.NoArgs,
		RunE: runCheck,
	}

	addVarFlags(cmd)
	cmd.Flags().BoolVar(&gen.strict, "strict", false, "Fail templates whose render produced warnings")

	return cmd
}

func runCheck(cmd *cobra.Command, _ []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}

	vars, err := p.variables(gen.varsFile, gen.sets)
	if err != nil {
		return err
	}

	// Existing outputs are validated too; the dry run never writes them.
	comp, err := buildComposite(cmd, p, nil, true, func(pipe *generator.Pipeline) {
		pipe.Hooks().OnConflict = conflict.OverwriteHook
		pipe.Hooks().OnBeforeFileWrite(func(ev *generator.FileEvent) error {
			if ev.Kind == "" {
				return nil
			}
			return generator.Validate(ev.Kind, ev.Content)
		})
	})
	if err != nil {
		return err
	}

	var sum *generator.Summary
	runErr := runWithCancellation(func(ctx context.Context) error {
		var err error
		sum, err = comp.Run(ctx, vars)
		return err
	})

	fmt.Print(ui.RenderSummary(sum))

	if runErr != nil {
		return runErr
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d template(s) failed the check", sum.Failed)
	}

	return nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List templates per stage",
		Long:  `Display every template and copied file of each stage with its output name.`,
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
}

func runList(_ *cobra.Command, _ []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}

	for i, s := range p.stages {
		if i > 0 {
			fmt.Println()
		}
		fmt.Printf("%s  %s -> %s\n", ui.TitleStyle.Render(s.Name), s.TemplateRoot, s.OutputRoot)
		if s.When != "" {
			fmt.Printf("  %s\n", ui.MutedTextStyle.Render("when "+s.When))
		}

		st := p.store(s)
		ids, err := st.ListAll()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println(ui.MutedTextStyle.Render("  no templates"))
			continue
		}

		for _, id := range ids {
			t, err := st.Load(id)
			if err != nil {
				slog.Warn("could not load template", slog.String("id", id), slog.String("error", err.Error()))
				continue
			}

			marker := "copy"
			if t.IsTemplate {
				marker = "tmpl"
			}
			line := fmt.Sprintf("  [%s] %s -> %s", marker, id, tmpl.TargetName(id, s.TemplateSuffix))
			if t.Metadata.Description != "" {
				line += "  " + ui.MutedTextStyle.Render(t.Metadata.Description)
			}
			fmt.Println(line)
		}
	}

	return nil
}

func newHelpersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "helpers",
		Short: "List the helpers templates can call",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			for _, name := range helpers.New().Names() {
				fmt.Println(name)
			}
			return nil
		},
	}
}
