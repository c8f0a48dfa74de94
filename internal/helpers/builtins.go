package helpers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/go-sprout/sprout"
	sproutstrings "github.com/go-sprout/sprout/registry/strings"

	tmpl "github.com/AntoineGS/tidygen/internal/template"
)

// ErrArgs is returned by a helper called with the wrong arguments.
var ErrArgs = errors.New("invalid helper arguments")

// GeneratedHeader is the text emitted by the generatedHeader helper.
const GeneratedHeader = "Code generated by tidygen. DO NOT EDIT."

// DoNotEdit is the text emitted by the doNotEdit helper.
const DoNotEdit = "This file is generated; manual changes will be overwritten."

var rtlLanguages = map[string]bool{
	"ar": true, "arc": true, "ckb": true, "dv": true, "fa": true, "he": true,
	"iw": true, "ks": true, "ku": true, "ps": true, "sd": true, "ug": true,
	"ur": true, "yi": true,
}

var sproutFuncs = sync.OnceValue(func() map[string]any {
	handler := sprout.New()
	if err := handler.AddRegistries(sproutstrings.NewRegistry()); err != nil {
		return nil
	}

	return handler.Build()
})

// stringFunc returns the sprout function registered as name when it has the
// func(string) string shape, or fallback otherwise.
func stringFunc(name string, fallback func(string) string) func(string) string {
	if fn, ok := sproutFuncs()[name].(func(string) string); ok {
		return fn
	}

	return fallback
}

func builtins(r *Registry) map[string]tmpl.HelperFunc {
	m := map[string]tmpl.HelperFunc{
		"join":   join,
		"first":  first,
		"last":   last,
		"length": length,

		"eq": compare(func(a, b any) bool { return tmpl.StrictEqual(a, b) }),
		"ne": compare(func(a, b any) bool { return !tmpl.StrictEqual(a, b) }),
		"gt": compare(func(a, b any) bool { return order(a, b) > 0 }),
		"lt": compare(func(a, b any) bool { return order(a, b) < 0 }),

		"formatDate": func(_ *tmpl.Context, args ...any) (string, error) {
			return formatDate(r.clock, args...)
		},

		"isRTL": func(_ *tmpl.Context, args ...any) (string, error) {
			if len(args) != 1 {
				return "", fmt.Errorf("%w: isRTL takes a locale", ErrArgs)
			}
			return strconv.FormatBool(rtlLanguages[language(tmpl.Stringify(args[0]))]), nil
		},
		"lang": func(_ *tmpl.Context, args ...any) (string, error) {
			if len(args) != 1 {
				return "", fmt.Errorf("%w: lang takes a locale", ErrArgs)
			}
			return language(tmpl.Stringify(args[0])), nil
		},

		"generatedHeader": func(_ *tmpl.Context, args ...any) (string, error) {
			if len(args) > 0 {
				return fmt.Sprintf("Code generated by %s. DO NOT EDIT.", tmpl.Stringify(args[0])), nil
			}
			return GeneratedHeader, nil
		},
		"doNotEdit": func(_ *tmpl.Context, _ ...any) (string, error) {
			return DoNotEdit, nil
		},
		"spdx": func(_ *tmpl.Context, args ...any) (string, error) {
			id := "MIT"
			if len(args) > 0 {
				id = tmpl.Stringify(args[0])
			}
			return "SPDX-License-Identifier: " + id, nil
		},
	}

	cases := map[string]struct {
		sprout   string
		fallback func(string) string
	}{
		"upper":      {"toUpper", strings.ToUpper},
		"lower":      {"toLower", strings.ToLower},
		"capitalize": {"capitalize", capitalize},
	}
	for name, c := range cases {
		m[name] = unary(name, stringFunc(c.sprout, c.fallback))
	}

	// Word-splitting conversions share one splitter so they agree on
	// acronyms.
	m["camel"] = unary("camel", camelCase)
	m["pascal"] = unary("pascal", pascalCase)
	m["kebab"] = unary("kebab", func(s string) string { return joinWords(s, "-") })
	m["snake"] = unary("snake", func(s string) string { return joinWords(s, "_") })

	return m
}

func unary(name string, fn func(string) string) tmpl.HelperFunc {
	return func(_ *tmpl.Context, args ...any) (string, error) {
		if len(args) != 1 {
			return "", fmt.Errorf("%w: %s takes one argument, got %d", ErrArgs, name, len(args))
		}
		return fn(tmpl.Stringify(args[0])), nil
	}
}

func join(_ *tmpl.Context, args ...any) (string, error) {
	if len(args) < 1 || len(args) > 2 {
		return "", fmt.Errorf("%w: join takes a list and an optional separator", ErrArgs)
	}

	list, ok := args[0].([]any)
	if !ok {
		return "", fmt.Errorf("%w: join expects a list, got %T", ErrArgs, args[0])
	}

	sep := ","
	if len(args) == 2 {
		sep = tmpl.Stringify(args[1])
	}

	parts := make([]string, len(list))
	for i, el := range list {
		parts[i] = tmpl.Stringify(el)
	}

	return strings.Join(parts, sep), nil
}

func first(_ *tmpl.Context, args ...any) (string, error) {
	list, err := listArg("first", args)
	if err != nil || len(list) == 0 {
		return "", err
	}

	return tmpl.Stringify(list[0]), nil
}

func last(_ *tmpl.Context, args ...any) (string, error) {
	list, err := listArg("last", args)
	if err != nil || len(list) == 0 {
		return "", err
	}

	return tmpl.Stringify(list[len(list)-1]), nil
}

func length(_ *tmpl.Context, args ...any) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: length takes one argument", ErrArgs)
	}

	switch v := args[0].(type) {
	case []any:
		return strconv.Itoa(len(v)), nil
	case map[string]any:
		return strconv.Itoa(len(v)), nil
	case string:
		return strconv.Itoa(len([]rune(v))), nil
	case nil:
		return "0", nil
	default:
		return "", fmt.Errorf("%w: length of %T", ErrArgs, v)
	}
}

func listArg(name string, args []any) ([]any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: %s takes one list", ErrArgs, name)
	}

	list, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects a list, got %T", ErrArgs, name, args[0])
	}

	return list, nil
}

func compare(pred func(a, b any) bool) tmpl.HelperFunc {
	return func(_ *tmpl.Context, args ...any) (string, error) {
		if len(args) != 2 {
			return "", fmt.Errorf("%w: comparison takes two arguments", ErrArgs)
		}
		return strconv.FormatBool(pred(args[0], args[1])), nil
	}
}

// order compares numerically when both sides are numbers, otherwise by their
// string forms.
func order(a, b any) int {
	fa, okA := tmpl.ToFloat(a)
	fb, okB := tmpl.ToFloat(b)
	if okA && okB {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(tmpl.Stringify(a), tmpl.Stringify(b))
}

func language(locale string) string {
	tag := strings.TrimSpace(locale)
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}

	return strings.ToLower(tag)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}

	return string(unicode.ToUpper(r)) + s[size:]
}

// words splits on separators, lower-to-upper changes and the end of an
// acronym, so "HTTPServer" is HTTP and Server.
func words(s string) []string {
	var out []string
	var cur []rune
	prev := rune(0)

	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = nil
		}
	}

	for _, r := range s {
		switch {
		case r == '_' || r == '-' || r == '.' || unicode.IsSpace(r):
			flush()
		case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			flush()
			cur = []rune{r}
		case unicode.IsLower(r) && unicode.IsUpper(prev) && len(cur) > 1:
			last := cur[len(cur)-1]
			cur = cur[:len(cur)-1]
			flush()
			cur = []rune{last, r}
		default:
			cur = append(cur, r)
		}
		prev = r
	}
	flush()

	return out
}

func joinWords(s, sep string) string {
	parts := words(s)
	for i, w := range parts {
		parts[i] = strings.ToLower(w)
	}

	return strings.Join(parts, sep)
}

func pascalCase(s string) string {
	parts := words(s)
	for i, w := range parts {
		parts[i] = capitalize(strings.ToLower(w))
	}

	return strings.Join(parts, "")
}

func camelCase(s string) string {
	p := pascalCase(s)
	r, size := utf8.DecodeRuneInString(p)
	if size == 0 {
		return p
	}

	return string(unicode.ToLower(r)) + p[size:]
}
