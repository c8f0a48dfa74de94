package helpers

import (
	"fmt"
	"strings"
	"time"

	tmpl "github.com/AntoineGS/tidygen/internal/template"
)

// DefaultDateFormat is used by formatDate when no format is given.
const DefaultDateFormat = "YYYY-MM-DD"

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// dateTokens maps format tokens to time layout elements, longest first so
// that MM wins over M at the same position.
var dateTokens = []struct {
	token  string
	layout string
}{
	{"YYYY", "2006"},
	{"YY", "06"},
	{"MM", "01"},
	{"M", "1"},
	{"DD", "02"},
	{"D", "2"},
	{"HH", "15"},
	{"mm", "04"},
	{"ss", "05"},
}

// formatDate implements {{formatDate date "YYYY-MM-DD"}}. date may be a
// time.Time, a string in one of dateLayouts, or "now".
func formatDate(now func() time.Time, args ...any) (string, error) {
	if len(args) < 1 || len(args) > 2 {
		return "", fmt.Errorf("%w: formatDate takes a date and an optional format", ErrArgs)
	}

	t, err := toTime(now, args[0])
	if err != nil {
		return "", err
	}

	format := DefaultDateFormat
	if len(args) == 2 {
		format = tmpl.Stringify(args[1])
	}

	return t.Format(dateLayout(format)), nil
}

func toTime(now func() time.Time, v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return d, nil
	case string:
		if d == "now" {
			return now(), nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, d); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: cannot parse date %q", ErrArgs, d)
	default:
		return time.Time{}, fmt.Errorf("%w: formatDate expects a date, got %T", ErrArgs, v)
	}
}

// dateLayout translates a token format into a Go time layout. Characters that
// are not tokens are copied through, so they must not collide with Go's
// reference values.
func dateLayout(format string) string {
	var b strings.Builder

	for i := 0; i < len(format); {
		matched := false
		for _, t := range dateTokens {
			if strings.HasPrefix(format[i:], t.token) {
				b.WriteString(t.layout)
				i += len(t.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(format[i])
			i++
		}
	}

	return b.String()
}
