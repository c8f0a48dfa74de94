package template

import "strings"

// DefaultSuffix marks a file as a template.
const DefaultSuffix = ".tmpl"

// IsTemplateFile reports whether name carries the template suffix.
func IsTemplateFile(name, suffix string) bool {
	if suffix == "" {
		suffix = DefaultSuffix
	}

	return len(name) > len(suffix) && strings.HasSuffix(name, suffix)
}

// TargetName strips exactly one template suffix from name, if present.
// "config.yaml.tmpl" becomes "config.yaml"; "a.tmpl.tmpl" becomes "a.tmpl".
func TargetName(name, suffix string) string {
	if !IsTemplateFile(name, suffix) {
		return name
	}
	if suffix == "" {
		suffix = DefaultSuffix
	}

	return strings.TrimSuffix(name, suffix)
}
