package generator

import (
	"time"

	"github.com/AntoineGS/tidygen/internal/conflict"
	tmpl "github.com/AntoineGS/tidygen/internal/template"
)

// Status is the terminal outcome of one file.
type Status string

// File statuses.
const (
	StatusGenerated Status = "generated"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// State is a step of the per-file lifecycle. A result records the last state
// its file reached.
type State string

// Lifecycle states, in order.
const (
	StateDiscovered      State = "discovered"
	StateRendered        State = "rendered"
	StatePathResolved    State = "path-resolved"
	StateConflictChecked State = "conflict-checked"
	StateBackedUp        State = "backed-up"
	StateWritten         State = "written"
	StateValidated       State = "validated"
	StateHookNotified    State = "hook-notified"
	StateRecorded        State = "recorded"
)

// Metrics are per-file measurements.
type Metrics struct {
	Size     int64
	Duration time.Duration
}

// Result is the outcome of processing one template.
type Result struct {
	Err        error
	Stage      string
	TemplateID string
	Path       string
	BackupPath string
	Status     Status
	State      State
	Action     conflict.Action
	Reason     string
	Warnings   []tmpl.Warning
	Metrics    Metrics
	DryRun     bool
}

// Success reports whether the file did not fail. Skipped files succeed.
func (r Result) Success() bool {
	return r.Status != StatusFailed
}

// Skipped reports whether the file was left untouched.
func (r Result) Skipped() bool {
	return r.Status == StatusSkipped
}

// Summary aggregates the results of a run in processing order.
type Summary struct {
	Files     []string
	Results   []Result
	Duration  time.Duration
	RunIDs    []int64
	Generated int
	Skipped   int
	Failed    int
}

// Warnings counts the warnings attached to every result.
func (s *Summary) Warnings() int {
	n := 0
	for _, r := range s.Results {
		n += len(r.Warnings)
	}

	return n
}

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)

	switch r.Status {
	case StatusGenerated:
		s.Generated++
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
}

// Merge appends other's results, files and totals to s.
func (s *Summary) Merge(other *Summary) {
	if other == nil {
		return
	}

	s.Files = append(s.Files, other.Files...)
	s.Results = append(s.Results, other.Results...)
	s.RunIDs = append(s.RunIDs, other.RunIDs...)
	s.Duration += other.Duration
	s.Generated += other.Generated
	s.Skipped += other.Skipped
	s.Failed += other.Failed
}
