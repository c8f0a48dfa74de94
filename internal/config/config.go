// Package config loads the project configuration (tidygen.yaml) and the
// per-user app configuration.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up by the CLI.
const FileName = "tidygen.yaml"

// CurrentVersion is the only supported config version.
const CurrentVersion = 1

// Config is the main configuration structure. Top-level settings apply to
// every stage unless the stage overrides them; without stages the top level
// is a single stage named "default".
type Config struct {
	Defaults       map[string]any `yaml:"defaults,omitempty"`
	TemplateRoot   string         `yaml:"template_root"`
	OutputRoot     string         `yaml:"output_root"`
	TemplateSuffix string         `yaml:"template_suffix,omitempty"`
	PartialsDir    string         `yaml:"partials_dir,omitempty"`
	Conflict       string         `yaml:"conflict,omitempty"`
	dir            string
	Ignore         []string `yaml:"ignore,omitempty"`
	Stages         []Stage  `yaml:"stages,omitempty"`
	Version        int      `yaml:"version"`
	Overwrite      bool     `yaml:"overwrite"`
	Backup         bool     `yaml:"backup"`
	ValidateOutput bool     `yaml:"validate"`
	Strict         bool     `yaml:"strict"`
	FailFast       bool     `yaml:"fail_fast"`
	History        bool     `yaml:"history"`
}

// Stage is one pipeline in a multi-stage run. Unset fields inherit the
// top-level value.
type Stage struct {
	Defaults       map[string]any `yaml:"defaults,omitempty"`
	Overwrite      *bool          `yaml:"overwrite,omitempty"`
	Backup         *bool          `yaml:"backup,omitempty"`
	Validate       *bool          `yaml:"validate,omitempty"`
	Strict         *bool          `yaml:"strict,omitempty"`
	FailFast       *bool          `yaml:"fail_fast,omitempty"`
	Name           string         `yaml:"name"`
	When           string         `yaml:"when,omitempty"`
	TemplateRoot   string         `yaml:"template_root,omitempty"`
	OutputRoot     string         `yaml:"output_root,omitempty"`
	TemplateSuffix string         `yaml:"template_suffix,omitempty"`
	PartialsDir    string         `yaml:"partials_dir,omitempty"`
	Conflict       string         `yaml:"conflict,omitempty"`
	Ignore         []string       `yaml:"ignore,omitempty"`
}

// Settings are the effective, path-expanded settings of one stage.
type Settings struct {
	Defaults       map[string]any
	Name           string
	When           string
	TemplateRoot   string
	OutputRoot     string
	TemplateSuffix string
	PartialsDir    string
	Conflict       string
	Ignore         []string
	Overwrite      bool
	Backup         bool
	Validate       bool
	Strict         bool
	FailFast       bool
}

// DefaultConfig returns the configuration used for keys a file leaves out.
func DefaultConfig() *Config {
	return &Config{
		Version:        CurrentVersion,
		TemplateRoot:   "templates",
		OutputRoot:     ".",
		TemplateSuffix: ".tmpl",
		PartialsDir:    "_partials",
		Conflict:       "skip",
		Backup:         true,
		ValidateOutput: true,
		History:        true,
	}
}

// Load reads and parses the configuration file at path. Relative roots in
// the file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from user config, intentional
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	cfg.dir = filepath.Dir(path)

	return cfg, nil
}

// Parse decodes configuration YAML on top of DefaultConfig.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("%w %d (expected %d)", ErrUnsupportedVersion, cfg.Version, CurrentVersion)
	}

	return cfg, nil
}

// Dir returns the directory relative paths are resolved against.
func (c *Config) Dir() string {
	return c.dir
}

// SetDir changes the directory relative paths are resolved against.
func (c *Config) SetDir(dir string) {
	c.dir = dir
}

// StageSettings returns the effective settings of every stage in order, with
// paths expanded. appDefaults are merged under the project defaults.
func (c *Config) StageSettings(appDefaults map[string]any, envVars map[string]string) []Settings {
	base := Settings{
		Name:           "default",
		TemplateRoot:   c.TemplateRoot,
		OutputRoot:     c.OutputRoot,
		TemplateSuffix: c.TemplateSuffix,
		PartialsDir:    c.PartialsDir,
		Conflict:       c.Conflict,
		Ignore:         c.Ignore,
		Defaults:       MergeDefaults(appDefaults, c.Defaults),
		Overwrite:      c.Overwrite,
		Backup:         c.Backup,
		Validate:       c.ValidateOutput,
		Strict:         c.Strict,
		FailFast:       c.FailFast,
	}

	if len(c.Stages) == 0 {
		return []Settings{c.expand(base, envVars)}
	}

	out := make([]Settings, 0, len(c.Stages))
	for _, st := range c.Stages {
		s := base
		s.Name = st.Name
		s.When = st.When
		s.TemplateRoot = pick(st.TemplateRoot, base.TemplateRoot)
		s.OutputRoot = pick(st.OutputRoot, base.OutputRoot)
		s.TemplateSuffix = pick(st.TemplateSuffix, base.TemplateSuffix)
		s.PartialsDir = pick(st.PartialsDir, base.PartialsDir)
		s.Conflict = pick(st.Conflict, base.Conflict)
		s.Ignore = append(append([]string(nil), base.Ignore...), st.Ignore...)
		s.Defaults = MergeDefaults(base.Defaults, st.Defaults)
		s.Overwrite = pickBool(st.Overwrite, base.Overwrite)
		s.Backup = pickBool(st.Backup, base.Backup)
		s.Validate = pickBool(st.Validate, base.Validate)
		s.Strict = pickBool(st.Strict, base.Strict)
		s.FailFast = pickBool(st.FailFast, base.FailFast)

		out = append(out, c.expand(s, envVars))
	}

	return out
}

func (c *Config) expand(s Settings, envVars map[string]string) Settings {
	s.TemplateRoot = c.resolve(ExpandPath(s.TemplateRoot, envVars))
	s.OutputRoot = c.resolve(ExpandPath(s.OutputRoot, envVars))

	return s
}

func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.dir == "" {
		return path
	}

	return filepath.Join(c.dir, path)
}

func pick(v, fallback string) string {
	if v != "" {
		return v
	}

	return fallback
}

func pickBool(v *bool, fallback bool) bool {
	if v != nil {
		return *v
	}

	return fallback
}

// MergeDefaults deep-merges layers, later layers winning. Nested maps merge
// key by key; the inputs are not modified.
func MergeDefaults(layers ...map[string]any) map[string]any {
	out := make(map[string]any)

	for _, layer := range layers {
		for k, v := range layer {
			if over, ok := v.(map[string]any); ok {
				if base, ok := out[k].(map[string]any); ok {
					out[k] = MergeDefaults(base, over)
					continue
				}
				out[k] = MergeDefaults(over)
				continue
			}
			out[k] = v
		}
	}

	return out
}

// ExpandPath expands ~ and environment variables in a single path.
// This should be used when a path is needed for file operations.
// The path is kept unexpanded in the config to maintain portability.
func ExpandPath(path string, envVars map[string]string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	// Expand environment variables from the provided map
	for key, value := range envVars {
		path = strings.ReplaceAll(path, "$"+key, value)
	}

	// Also expand standard environment variables
	path = os.ExpandEnv(path)

	return path
}

// Save writes the config to the specified file path
func Save(cfg *Config, path string) error {
	data, err := marshalYAML(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// marshalYAML encodes a value to YAML with 2-space indentation.
func marshalYAML(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	if err := enc.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
