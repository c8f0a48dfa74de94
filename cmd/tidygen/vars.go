package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// loadVarsFile reads a variables file. TOML is chosen by extension; anything
// else is parsed as YAML, which also accepts JSON.
func loadVarsFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is user-provided
	if err != nil {
		return nil, fmt.Errorf("reading vars file: %w", err)
	}

	vars := make(map[string]any)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &vars); err != nil {
			return nil, fmt.Errorf("parsing vars file %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &vars); err != nil {
			return nil, fmt.Errorf("parsing vars file %s: %w", path, err)
		}
	}

	return vars, nil
}

// parseSets turns key.path=value pairs into nested maps. Values are typed the
// way YAML would type them, so "8080" is a number and "true" a bool; anything
// YAML rejects stays a string.
func parseSets(sets []string) (map[string]any, error) {
	out := make(map[string]any)

	for _, s := range sets {
		key, raw, ok := strings.Cut(s, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", s)
		}

		var value any = raw
		var typed any
		if raw != "" && yaml.Unmarshal([]byte(raw), &typed) == nil {
			switch typed.(type) {
			case map[string]any, nil:
				// "a: b" and comments stay text
			default:
				value = typed
			}
		}

		if err := setPath(out, strings.Split(key, "."), value); err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", s, err)
		}
	}

	return out, nil
}

func setPath(m map[string]any, parts []string, value any) error {
	for i, part := range parts {
		if part == "" {
			return errors.New("empty key segment")
		}
		if i == len(parts)-1 {
			m[part] = value
			return nil
		}

		next, ok := m[part].(map[string]any)
		if !ok {
			if _, exists := m[part]; exists {
				return fmt.Errorf("%s is already set to a value", strings.Join(parts[:i+1], "."))
			}
			next = make(map[string]any)
			m[part] = next
		}
		m = next
	}

	return nil
}
