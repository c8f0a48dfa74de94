package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ConflictPolicies lists the accepted values of the conflict setting.
var ConflictPolicies = []string{"skip", "overwrite", "rename", "prompt"}

// ValidatePath checks a path for potential security issues.
// It returns an error if the path contains null bytes.
func ValidatePath(path string) error {
	if strings.ContainsRune(path, '\x00') {
		return errors.New("path contains null byte")
	}

	return nil
}

// Validate checks the configuration and returns a *ValidationErrors listing
// every problem found, or nil.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	c.validateSettings(errs, "", c.TemplateRoot, c.OutputRoot, c.TemplateSuffix, c.Conflict)

	seen := make(map[string]bool)
	for i, st := range c.Stages {
		name := st.Name
		if strings.TrimSpace(name) == "" {
			errs.add(fmt.Sprintf("#%d", i+1), "name", "", fmt.Errorf("%w: name is required", ErrInvalidConfig))
			continue
		}
		if seen[name] {
			errs.add(name, "name", name, fmt.Errorf("%w: duplicate stage name", ErrInvalidConfig))
		}
		seen[name] = true

		c.validateSettings(errs, name,
			pick(st.TemplateRoot, c.TemplateRoot),
			pick(st.OutputRoot, c.OutputRoot),
			pick(st.TemplateSuffix, c.TemplateSuffix),
			pick(st.Conflict, c.Conflict))
	}

	return errs.orNil()
}

func (c *Config) validateSettings(errs *ValidationErrors, stage, templateRoot, outputRoot, suffix, conflict string) {
	if strings.TrimSpace(templateRoot) == "" {
		errs.add(stage, "template_root", templateRoot, fmt.Errorf("%w: template root is required", ErrInvalidConfig))
	} else if err := ValidatePath(templateRoot); err != nil {
		errs.add(stage, "template_root", templateRoot, err)
	}

	if strings.TrimSpace(outputRoot) == "" {
		errs.add(stage, "output_root", outputRoot, fmt.Errorf("%w: output root is required", ErrInvalidConfig))
	} else if err := ValidatePath(outputRoot); err != nil {
		errs.add(stage, "output_root", outputRoot, err)
	}

	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		errs.add(stage, "template_suffix", suffix, fmt.Errorf("%w: suffix must start with a dot", ErrInvalidConfig))
	}

	if conflict != "" && !slices.Contains(ConflictPolicies, conflict) {
		errs.add(stage, "conflict", conflict,
			fmt.Errorf("%w: expected one of %s", ErrInvalidConfig, strings.Join(ConflictPolicies, ", ")))
	}
}

// FindStage returns the settings of the named stage.
func FindStage(settings []Settings, name string) (Settings, error) {
	for _, s := range settings {
		if s.Name == name {
			return s, nil
		}
	}

	return Settings{}, fmt.Errorf("%w: %s", ErrUnknownStage, name)
}
