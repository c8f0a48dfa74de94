package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/AntoineGS/tidygen/internal/config"
	"github.com/AntoineGS/tidygen/internal/helpers"
	"github.com/AntoineGS/tidygen/internal/platform"
	"github.com/AntoineGS/tidygen/internal/state"
	"github.com/AntoineGS/tidygen/internal/store"
	tmpl "github.com/AntoineGS/tidygen/internal/template"
)

// project is a loaded configuration with everything derived from it.
type project struct {
	cfg      *config.Config
	app      *config.AppConfig
	plat     *platform.Platform
	fs       afero.Fs
	registry *helpers.Registry
	stages   []config.Settings
}

func loadProject() (*project, error) {
	path, err := filepath.Abs(configFile)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
		slog.Debug("no project config, using defaults", slog.String("path", path))
		cfg = config.DefaultConfig()
		cfg.SetDir(filepath.Dir(path))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app, err := config.LoadAppConfig()
	if err != nil {
		return nil, err
	}

	plat := platform.Detect()
	if osOverride != "" {
		switch osOverride {
		case platform.OSLinux, platform.OSWindows, platform.OSDarwin:
			plat = plat.WithOS(osOverride)
		default:
			return nil, fmt.Errorf("invalid OS override: %s (must be 'linux', 'windows' or 'darwin')", osOverride)
		}
	}

	stages := cfg.StageSettings(app.Defaults, plat.EnvVars)
	if stageName != "" {
		s, err := config.FindStage(stages, stageName)
		if err != nil {
			return nil, err
		}
		stages = []config.Settings{s}
	}

	return &project{
		cfg:      cfg,
		app:      app,
		plat:     plat,
		fs:       afero.NewOsFs(),
		registry: helpers.New(),
		stages:   stages,
	}, nil
}

func (p *project) store(s config.Settings) *store.Store {
	return store.New(p.fs, store.Options{
		Root:        s.TemplateRoot,
		Suffix:      s.TemplateSuffix,
		PartialsDir: s.PartialsDir,
		Ignore:      s.Ignore,
	}).WithLogger(slog.Default())
}

// variables layers platform facts, the --vars file and --set values, lowest
// first. Config defaults are applied per stage by the pipeline.
func (p *project) variables(varsFile string, sets []string) (*tmpl.Context, error) {
	layers := []map[string]any{tmpl.PlatformDefaults(p.plat)}

	if varsFile != "" {
		m, err := loadVarsFile(varsFile)
		if err != nil {
			return nil, err
		}
		layers = append(layers, m)
	}

	m, err := parseSets(sets)
	if err != nil {
		return nil, err
	}
	layers = append(layers, m)

	return tmpl.NewContext(layers...), nil
}

func (p *project) historyPath() string {
	return filepath.Join(p.cfg.Dir(), state.DBName)
}

// openHistory opens the run history when the project enables it. Failure is
// logged and leaves history off.
func (p *project) openHistory() *state.Store {
	if !p.cfg.History {
		return nil
	}

	db, err := state.Open(p.historyPath())
	if err != nil {
		slog.Warn("could not open run history", slog.String("error", err.Error()))
		return nil
	}

	return db
}
