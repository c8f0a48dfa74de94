package generator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	tmpl "github.com/AntoineGS/tidygen/internal/template"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Output kinds understood by validation.
const (
	KindJSON   = "json"
	KindYAML   = "yaml"
	KindTOML   = "toml"
	KindSource = "source"
	KindText   = "text"
)

var kindByExt = map[string]string{
	".json": KindJSON,
	".yaml": KindYAML,
	".yml":  KindYAML,
	".toml": KindTOML,

	".go": KindSource, ".js": KindSource, ".mjs": KindSource, ".cjs": KindSource,
	".ts": KindSource, ".tsx": KindSource, ".jsx": KindSource, ".py": KindSource,
	".rb": KindSource, ".java": KindSource, ".kt": KindSource, ".rs": KindSource,
	".c": KindSource, ".h": KindSource, ".cpp": KindSource, ".cs": KindSource,
	".php": KindSource, ".swift": KindSource, ".sh": KindSource, ".html": KindSource,
	".css": KindSource, ".scss": KindSource, ".vue": KindSource, ".svelte": KindSource,
	".sql": KindSource,
}

// KindOf returns the declared kind when set, otherwise the kind implied by
// path's extension. Unknown extensions are text.
func KindOf(path, declared string) string {
	if declared != "" {
		return strings.ToLower(declared)
	}

	if kind, ok := kindByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return kind
	}

	return KindText
}

// Validate checks content against kind. Text is never rejected.
func Validate(kind string, content []byte) error {
	switch kind {
	case KindJSON:
		if !json.Valid(content) {
			var v any
			err := json.Unmarshal(content, &v)
			return fmt.Errorf("%w: invalid JSON: %w", ErrValidation, err)
		}
	case KindYAML:
		dec := yaml.NewDecoder(bytes.NewReader(content))
		for {
			var v any
			err := dec.Decode(&v)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return fmt.Errorf("%w: invalid YAML: %w", ErrValidation, err)
			}
		}
	case KindTOML:
		var v map[string]any
		if err := toml.Unmarshal(content, &v); err != nil {
			return fmt.Errorf("%w: invalid TOML: %w", ErrValidation, err)
		}
	case KindSource:
		if i := tmpl.DirectiveIndex(string(content)); i >= 0 {
			line := bytes.Count(content[:i], []byte("\n")) + 1
			return fmt.Errorf("%w: unresolved directive on line %d", ErrValidation, line)
		}
	}

	return nil
}
