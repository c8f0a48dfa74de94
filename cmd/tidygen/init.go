package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AntoineGS/tidygen/internal/config"
)

// ConfigFileName is the project config written by init.
const ConfigFileName = "tidygen.yaml"

const sampleTemplate = `{{! Rendered to README.md by tidygen generate }}
# {{project}}

{{#if description}}{{description}}{{else}}No description yet.{{/if}}

Maintainers:
{{#each maintainers}}
- {{item}}
{{/each}}
`

const sampleMetadata = `description: Project README
kind: text
required: [project]
defaults:
  maintainers: [you]
`

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a starter project",
		Long: `Create tidygen.yaml, a templates directory with a sample template and, if
missing, the app configuration. Existing files are left alone.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runInit,
	}
}

func runInit(_ *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	absPath, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0750); err != nil {
		return fmt.Errorf("creating project directory: %w", err)
	}

	cfgPath := filepath.Join(absPath, ConfigFileName)
	if exists(cfgPath) {
		fmt.Printf("Keeping existing %s\n", cfgPath)
	} else {
		cfg := config.DefaultConfig()
		cfg.OutputRoot = "out"
		cfg.Defaults = map[string]any{"project": filepath.Base(absPath)}

		if err := config.Save(cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("Project configuration saved to %s\n", cfgPath)
	}

	tplDir := filepath.Join(absPath, config.DefaultConfig().TemplateRoot)
	if err := os.MkdirAll(filepath.Join(tplDir, config.DefaultConfig().PartialsDir), 0750); err != nil {
		return fmt.Errorf("creating templates directory: %w", err)
	}

	sample := filepath.Join(tplDir, "README.md.tmpl")
	if !exists(sample) {
		if err := os.WriteFile(sample, []byte(sampleTemplate), 0600); err != nil {
			return fmt.Errorf("writing sample template: %w", err)
		}
		if err := os.WriteFile(sample+".meta.yaml", []byte(sampleMetadata), 0600); err != nil {
			return fmt.Errorf("writing sample metadata: %w", err)
		}
		fmt.Printf("Sample template written to %s\n", sample)
	}

	if appPath := config.AppConfigPath(); appPath != "" && !exists(appPath) {
		saved, err := config.SaveAppConfig(&config.AppConfig{})
		if err != nil {
			return fmt.Errorf("saving app config: %w", err)
		}
		fmt.Printf("App configuration saved to %s\n", saved)
	}

	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
