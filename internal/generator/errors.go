package generator

import (
	"errors"
	"fmt"
)

// Sentinel errors for generation.
var (
	// ErrVeto is returned, possibly wrapped, by a BeforeFileWrite hook to skip
	// a file without failing it.
	ErrVeto = errors.New("write vetoed")

	// ErrValidation marks written output that failed its post-write check.
	ErrValidation = errors.New("output validation failed")

	// ErrStrict fails a file whose render produced warnings in strict mode.
	ErrStrict = errors.New("render warnings in strict mode")

	// ErrBeforeGenerate aborts a run whose BeforeGenerate hook failed.
	ErrBeforeGenerate = errors.New("before-generate hook failed")
)

// FileError records an error and the operation and file that caused it.
type FileError struct {
	Err  error
	Op   string
	Path string
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// NewFileError creates a new FileError
func NewFileError(op, path string, err error) *FileError {
	return &FileError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}
