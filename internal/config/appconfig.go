package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// AppConfig is the per-user configuration stored in ~/.config/tidygen/.
// Its defaults sit underneath every project's defaults.
type AppConfig struct {
	Defaults map[string]any `yaml:"defaults,omitempty"`
	// Conflict is the policy used when a project does not set one.
	Conflict string `yaml:"conflict,omitempty"`
}

const (
	appConfigDir  = ".config/tidygen"
	appConfigFile = "config.yaml"
)

// LoadAppConfig loads the app configuration from ~/.config/tidygen/config.yaml.
// A missing file yields an empty configuration.
func LoadAppConfig() (*AppConfig, error) {
	configPath := AppConfigPath()
	if configPath == "" {
		return &AppConfig{}, nil
	}

	return LoadAppConfigFrom(configPath)
}

// LoadAppConfigFrom loads an app configuration from path.
func LoadAppConfigFrom(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from user home dir, intentional
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &AppConfig{}, nil
		}

		return nil, fmt.Errorf("reading app config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing app config: %w", err)
	}

	return &cfg, nil
}

// SaveAppConfig saves the app configuration to ~/.config/tidygen/config.yaml
// and returns the path written.
func SaveAppConfig(cfg *AppConfig) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	configDir := filepath.Join(home, appConfigDir)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(configDir, appConfigFile)

	data, err := marshalYAML(cfg)
	if err != nil {
		return "", fmt.Errorf("marshaling config: %w", err)
	}

	content := fmt.Sprintf("# tidygen app configuration\n# Defaults here apply to every project\n\n%s", string(data))

	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return "", fmt.Errorf("writing config: %w", err)
	}

	return configPath, nil
}

// AppConfigPath returns the path where the app config is stored.
// Returns an empty string if the home directory cannot be determined.
func AppConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, appConfigDir, appConfigFile)
}
