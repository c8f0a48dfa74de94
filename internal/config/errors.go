package config

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors
var (
	ErrUnsupportedVersion = errors.New("unsupported config version")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrUnknownStage       = errors.New("unknown stage")
	ErrWhen               = errors.New("cannot evaluate when expression")
)

// FieldError locates one bad setting. Stage is empty for top-level settings.
type FieldError struct {
	Err   error
	Stage string
	Field string
	Value string
}

// Key is the setting's location as written in tidygen.yaml, such as
// "stages.api.conflict".
func (e *FieldError) Key() string {
	if e.Stage == "" {
		return e.Field
	}

	return "stages." + e.Stage + "." + e.Field
}

func (e *FieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %v", e.Key(), e.Err)
	}

	return fmt.Sprintf("%s %q: %v", e.Key(), e.Value, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// ValidationErrors is every problem Validate found, in config order.
type ValidationErrors struct {
	Fields []*FieldError
}

func (e *ValidationErrors) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d invalid setting(s)", len(e.Fields))

	for _, f := range e.Fields {
		b.WriteString("\n  ")
		b.WriteString(f.Error())
	}

	return b.String()
}

// Unwrap exposes the field errors to errors.Is and errors.As.
func (e *ValidationErrors) Unwrap() []error {
	errs := make([]error, len(e.Fields))
	for i, f := range e.Fields {
		errs[i] = f
	}

	return errs
}

func (e *ValidationErrors) add(stage, field, value string, err error) {
	e.Fields = append(e.Fields, &FieldError{Err: err, Stage: stage, Field: field, Value: value})
}

func (e *ValidationErrors) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}

	return e
}
