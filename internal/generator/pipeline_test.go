package generator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/AntoineGS/tidygen/internal/conflict"
	"github.com/AntoineGS/tidygen/internal/helpers"
	"github.com/AntoineGS/tidygen/internal/state"
	"github.com/AntoineGS/tidygen/internal/store"
	tmpl "github.com/AntoineGS/tidygen/internal/template"
	"github.com/AntoineGS/tidygen/internal/testutil"
)

var testStamp = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPipeline(t *testing.T, fs afero.Fs, root, out string, opts Options) *Pipeline {
	t.Helper()

	st := store.New(fs, store.Options{Root: root}).WithLogger(discard())
	engine := tmpl.NewEngine(helpers.New(), st)
	opts.OutputRoot = out

	return New(fs, st, engine, opts).
		WithLogger(discard()).
		WithClock(func() time.Time { return testStamp })
}

func readFile(t *testing.T, fs afero.Fs, name string) string {
	t.Helper()

	data, err := afero.ReadFile(fs, name)
	if err != nil {
		t.Fatalf("reading %s: %v", name, err)
	}

	return string(data)
}

func exists(t *testing.T, fs afero.Fs, name string) bool {
	t.Helper()

	ok, err := afero.Exists(fs, name)
	if err != nil {
		t.Fatal(err)
	}

	return ok
}

func hasWarning(ws []tmpl.Warning, kind tmpl.WarningKind) bool {
	return slices.ContainsFunc(ws, func(w tmpl.Warning) bool { return w.Kind == kind })
}

func TestPipeline_EndToEnd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		admin bool
		want  string
	}{
		{"admin", true, "Hello Ada! (admin)"},
		{"not admin", false, "Hello Ada!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fs := afero.NewMemMapFs()
			testutil.WriteFiles(t, fs, map[string]string{
				"/tpl/greeting.txt.tmpl": "Hello {{name}}!{{#if admin}} (admin){{/if}}",
			})
			p := newPipeline(t, fs, "/tpl", "/out", Options{})

			sum, err := p.Run(context.Background(), tmpl.NewContext(map[string]any{"name": "Ada", "admin": tt.admin}))
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			if got := readFile(t, fs, "/out/greeting.txt"); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
			if sum.Generated != 1 || sum.Failed != 0 || sum.Skipped != 0 {
				t.Errorf("summary = %+v, want one generated file", sum)
			}
			if !reflect.DeepEqual(sum.Files, []string{"/out/greeting.txt"}) {
				t.Errorf("Files = %v", sum.Files)
			}

			res := sum.Results[0]
			if res.State != StateRecorded || !res.Success() || res.Metrics.Size != int64(len(tt.want)) {
				t.Errorf("result = %+v", res)
			}
		})
	}
}

func TestPipeline_PathVariables(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, map[string]string{
		"/tpl/{{module}}/{{module}}.go.tmpl": "package {{module}}\n",
	})
	p := newPipeline(t, fs, "/tpl", "/out", Options{Validate: true})

	sum, err := p.Run(context.Background(), tmpl.NewContext(map[string]any{"module": "billing"}))
	if err != nil {
		t.Fatal(err)
	}

	want := filepath.Join("/out", "billing", "billing.go")
	if sum.Results[0].Path != want {
		t.Errorf("Path = %s, want %s", sum.Results[0].Path, want)
	}
	if got := readFile(t, fs, want); got != "package billing\n" {
		t.Errorf("output = %q", got)
	}
}

func TestPipeline_DefaultPolicySkipsExisting(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, map[string]string{
		"/tpl/app.txt.tmpl": "new {{v}}",
		"/out/app.txt":      "hand edited",
	})
	p := newPipeline(t, fs, "/tpl", "/out", Options{Backup: true})

	sum, err := p.Run(context.Background(), tmpl.NewContext(map[string]any{"v": 1}))
	if err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, fs, "/out/app.txt"); got != "hand edited" {
		t.Errorf("existing file changed to %q", got)
	}

	res := sum.Results[0]
	if !res.Skipped() || !res.Success() || res.Action != conflict.Skip {
		t.Errorf("result = %+v, want skipped", res)
	}
	if len(sum.Files) != 0 {
		t.Errorf("Files = %v, want none", sum.Files)
	}
}

func TestPipeline_MissingRequiredKeyWarns(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, map[string]string{
		"/tpl/doc.md.tmpl":           "# {{title}}\n",
		"/tpl/doc.md.tmpl.meta.yaml": "required: [title]\n",
	})
	p := newPipeline(t, fs, "/tpl", "/out", Options{Validate: true})

	sum, err := p.Run(context.Background(), tmpl.NewContext())
	if err != nil {
		t.Fatal(err)
	}

	res := sum.Results[0]
	if !res.Success() || res.Status != StatusGenerated {
		t.Errorf("result = %+v, want success", res)
	}
	if !hasWarning(res.Warnings, tmpl.WarnMissingKey) {
		t.Errorf("warnings = %v, want a missing-key warning", res.Warnings)
	}
	if sum.Warnings() < 1 {
		t.Errorf("Warnings() = %d", sum.Warnings())
	}
}

func TestPipeline_MetadataDefaults(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, map[string]string{
		"/tpl/a.txt.tmpl":           "{{greeting}} {{name}}",
		"/tpl/a.txt.tmpl.meta.yaml": "defaults:\n  greeting: Hi\n  name: nobody\n",
	})
	p := newPipeline(t, fs, "/tpl", "/out", Options{})

	if _, err := p.Run(context.Background(), tmpl.NewContext(map[string]any{"name": "Ada"})); err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, fs, "/out/a.txt"); got != "Hi Ada" {
		t.Errorf("output = %q, want %q", got, "Hi Ada")
	}
}

func TestPipeline_StageDefaults(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, map[string]string{
		"/tpl/a.txt.tmpl":           "{{greeting}} {{name}} {{team.lead}}",
		"/tpl/a.txt.tmpl.meta.yaml": "defaults:\n  greeting: Hi\n  name: nobody\n",
	})
	p := newPipeline(t, fs, "/tpl", "/out", Options{
		Defaults: map[string]any{"greeting": "Hey", "name": "staff", "team": map[string]any{"lead": "Grace"}},
	})

	if _, err := p.Run(context.Background(), tmpl.NewContext(map[string]any{"name": "Ada"})); err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, fs, "/out/a.txt"); got != "Hey Ada Grace" {
		t.Errorf("output = %q, want %q", got, "Hey Ada Grace")
	}
}

func TestPipeline_OverwriteWithBackup(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, map[string]string{
		"/tpl/app.json.tmpl": `{"version": {{version}}}`,
		"/out/app.json":      `{"version": 1}`,
	})
	p := newPipeline(t, fs, "/tpl", "/out", Options{Overwrite: true, Backup: true, Validate: true})

	sum, err := p.Run(context.Background(), tmpl.NewContext(map[string]any{"version": 2}))
	if err != nil {
		t.Fatal(err)
	}

	res := sum.Results[0]
	wantBackup := "/out/app.json.20240506T070809Z.bak"
	if res.BackupPath != wantBackup {
		t.Fatalf("BackupPath = %q, want %q", res.BackupPath, wantBackup)
	}
	if got := readFile(t, fs, wantBackup); got != `{"version": 1}` {
		t.Errorf("backup = %q, want pre-run content", got)
	}
	if got := readFile(t, fs, "/out/app.json"); got != `{"version": 2}` {
		t.Errorf("destination = %q, want rendered content", got)
	}
	if res.Action != conflict.Overwrite {
		t.Errorf("Action = %s, want overwrite", res.Action)
	}
}

func TestPipeline_Cleanup(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, map[string]string{
		"/tpl/a.txt.tmpl":     "a",
		"/tpl/b.txt.tmpl":     "b",
		"/tpl/sub/c.txt.tmpl": "c",
		"/out/b.txt":          "keep me",
	})
	p := newPipeline(t, fs, "/tpl", "/out", Options{})

	sum, err := p.Run(context.Background(), tmpl.NewContext())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Generated != 2 || sum.Skipped != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	removed, err := p.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("removed = %v, want 2 paths", removed)
	}

	for _, path := range sum.Files {
		if exists(t, fs, path) {
			t.Errorf("%s still exists after cleanup", path)
		}
	}
	if got := readFile(t, fs, "/out/b.txt"); got != "keep me" {
		t.Errorf("skipped file changed to %q", got)
	}
	if len(p.Written()) != 0 {
		t.Errorf("Written() = %v after cleanup", p.Written())
	}
}

func TestPipeline_CopyThrough(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		existing  bool
		overwrite bool
		want      string
		status    Status
	}{
		{"missing destination is copied", false, false, "raw {{x}}", StatusGenerated},
		{"existing destination is kept", true, false, "old", StatusSkipped},
		{"overwrite replaces", true, true, "raw {{x}}", StatusGenerated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fs := afero.NewMemMapFs()
			testutil.WriteFiles(t, fs, map[string]string{"/tpl/static.go": "raw {{x}}"})
			if tt.existing {
				testutil.WriteFiles(t, fs, map[string]string{"/out/static.go": "old"})
			}

			hook := conflict.HookFunc(func(conflict.Conflict) (conflict.Decision, error) {
				t.Error("hook consulted for a plain file")
				return conflict.Decision{Action: conflict.Overwrite}, nil
			})
			p := newPipeline(t, fs, "/tpl", "/out", Options{Overwrite: tt.overwrite, Validate: true})
			p.Hooks().OnConflict = hook

			sum, err := p.Run(context.Background(), tmpl.NewContext(map[string]any{"x": 1}))
			if err != nil {
				t.Fatal(err)
			}

			if got := readFile(t, fs, "/out/static.go"); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
			if sum.Results[0].Status != tt.status {
				t.Errorf("Status = %s, want %s", sum.Results[0].Status, tt.status)
			}
		})
	}
}

func TestPipeline_ConflictHook(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, map[string]string{
		"/tpl/a.txt.tmpl": "new",
		"/out/a.txt":      "old",
	})
	p := newPipeline(t, fs, "/tpl", "/out", Options{})

	var seen conflict.Conflict
	p.Hooks().OnConflict = conflict.HookFunc(func(c conflict.Conflict) (conflict.Decision, error) {
		seen = c
		return conflict.Decision{Action: conflict.Rename}, nil
	})

	sum, err := p.Run(context.Background(), tmpl.NewContext())
	if err != nil {
		t.Fatal(err)
	}

	if string(seen.Existing) != "old" || string(seen.Proposed) != "new" || seen.TemplateID != "a.txt.tmpl" {
		t.Errorf("hook saw %+v", seen)
	}
	if got := sum.Results[0].Path; got != "/out/a.1.txt" {
		t.Errorf("Path = %s, want /out/a.1.txt", got)
	}
	if got := readFile(t, fs, "/out/a.1.txt"); got != "new" {
		t.Errorf("renamed output = %q", got)
	}
	if got := readFile(t, fs, "/out/a.txt"); got != "old" {
		t.Errorf("original changed to %q", got)
	}
}

func TestPipeline_DuplicateDestination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		hook     conflict.Hook
		wantPath string
		status   Status
	}{
		{"second is skipped", nil, "/out/a.txt", StatusSkipped},
		{"rename keeps both", conflict.RenameHook, "/out/a.1.txt", StatusGenerated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fs := afero.NewMemMapFs()
			testutil.WriteFiles(t, fs, map[string]string{
				"/tpl/a.txt":      "plain",
				"/tpl/a.txt.tmpl": "templated",
			})
			p := newPipeline(t, fs, "/tpl", "/out", Options{Overwrite: true})
			p.Hooks().OnConflict = tt.hook

			sum, err := p.Run(context.Background(), tmpl.NewContext())
			if err != nil {
				t.Fatal(err)
			}

			second := sum.Results[1]
			if second.Status != tt.status || second.Path != tt.wantPath {
				t.Errorf("second result = %+v", second)
			}
			if got := readFile(t, fs, "/out/a.txt"); got != "plain" {
				t.Errorf("first destination = %q, want it untouched by the second template", got)
			}
		})
	}
}

func TestPipeline_Validation(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, map[string]string{
		"/tpl/bad.json.tmpl":          `{"name": {{name}}}`,
		"/tpl/good.yaml.tmpl":         "name: {{name}}\n",
		"/tpl/main.go.tmpl":           "package {{pkg}}\n",
		"/tpl/notes.txt.tmpl":         "{{pkg}}",
		"/tpl/raw.cfg.tmpl":           "a = {{name}}",
		"/tpl/raw.cfg.tmpl.meta.yaml": "kind: toml\n",
	})
	p := newPipeline(t, fs, "/tpl", "/out", Options{Validate: true})

	sum, err := p.Run(context.Background(), tmpl.NewContext(map[string]any{"name": "x"}))
	if err != nil {
		t.Fatal(err)
	}

	byID := map[string]Result{}
	for _, r := range sum.Results {
		byID[r.TemplateID] = r
	}

	for _, id := range []string{"bad.json.tmpl", "main.go.tmpl", "raw.cfg.tmpl"} {
		r := byID[id]
		if r.Success() || !errors.Is(r.Err, ErrValidation) {
			t.Errorf("%s: result = %+v, want validation failure", id, r)
		}
		var fe *FileError
		if !errors.As(r.Err, &fe) || fe.Op != "validate" {
			t.Errorf("%s: error = %v, want a validate FileError", id, r.Err)
		}
		if !exists(t, fs, r.Path) {
			t.Errorf("%s: validated file was removed", id)
		}
	}

	for _, id := range []string{"good.yaml.tmpl", "notes.txt.tmpl"} {
		if r := byID[id]; !r.Success() {
			t.Errorf("%s: result = %+v, want success", id, r)
		}
	}

	if sum.Failed != 3 || len(sum.Files) != 5 {
		t.Errorf("summary failed=%d files=%v", sum.Failed, sum.Files)
	}
}

func TestPipeline_Strict(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, map[string]string{
		"/tpl/a.txt.tmpl": "{{missing}}",
		"/tpl/b.txt.tmpl": "ok",
		"/tpl/c.txt.tmpl": "{{#if featrues.api}}API{{/if}}done",
	})
	p := newPipeline(t, fs, "/tpl", "/out", Options{Strict: true})

	sum, err := p.Run(context.Background(), tmpl.NewContext(map[string]any{
		"features": map[string]any{"api": true},
	}))
	if err != nil {
		t.Fatal(err)
	}

	for _, i := range []int{0, 2} {
		r := sum.Results[i]
		if r.Success() || !errors.Is(r.Err, ErrStrict) {
			t.Errorf("result %s = %+v, want strict failure", r.TemplateID, r)
		}
		if !hasWarning(r.Warnings, tmpl.WarnUnresolvedVariable) {
			t.Errorf("result %s warnings = %v, want an unresolved variable", r.TemplateID, r.Warnings)
		}
	}
	if exists(t, fs, "/out/a.txt") || exists(t, fs, "/out/c.txt") {
		t.Error("strict failure still wrote the file")
	}
	if !sum.Results[1].Success() {
		t.Error("a failure stopped the rest of the run")
	}
}

func TestPipeline_FailFast(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, map[string]string{
		"/tpl/a.txt.tmpl": "{{missing}}",
		"/tpl/b.txt.tmpl": "ok",
	})
	p := newPipeline(t, fs, "/tpl", "/out", Options{Strict: true, FailFast: true})

	var failures, finished int
	errReport := errors.New("report failed")
	p.Hooks().OnFailure(func(Result) { failures++ })
	p.Hooks().OnAfterGenerate(func(s *Summary) error {
		finished++
		if s.Failed != 1 {
			t.Errorf("AfterGenerate saw %d failures, want 1", s.Failed)
		}
		return errReport
	})

	sum, err := p.Run(context.Background(), tmpl.NewContext())

	var fe *FileError
	if !errors.As(err, &fe) || !errors.Is(err, ErrStrict) {
		t.Fatalf("Run() error = %v, want the file's error", err)
	}
	if !errors.Is(err, errReport) {
		t.Errorf("Run() error = %v, want the AfterGenerate error joined", err)
	}
	if len(sum.Results) != 1 || failures != 1 || finished != 1 {
		t.Errorf("results = %d failures = %d finished = %d, want 1 each", len(sum.Results), failures, finished)
	}
	if exists(t, fs, "/out/b.txt") {
		t.Error("fail-fast run kept going")
	}
}

func TestPipeline_FatalErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		files   map[string]string
		root    string
		wantErr error
	}{
		{
			name: "partial cycle",
			files: map[string]string{
				"/tpl/_partials/loop.tmpl": "again {{> loop}}",
				"/tpl/a.txt.tmpl":          "{{> loop}}",
				"/tpl/b.txt.tmpl":          "b",
			},
			root:    "/tpl",
			wantErr: tmpl.ErrPartialCycle,
		},
		{
			name: "malformed metadata",
			files: map[string]string{
				"/tpl/a.txt.tmpl":           "a",
				"/tpl/a.txt.tmpl.meta.yaml": "required: [unclosed\n",
				"/tpl/b.txt.tmpl":           "b",
			},
			root:    "/tpl",
			wantErr: store.ErrMetadata,
		},
		{
			name:    "missing root",
			files:   map[string]string{},
			root:    "/nowhere",
			wantErr: store.ErrTemplateRoot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fs := afero.NewMemMapFs()
			testutil.WriteFiles(t, fs, tt.files)
			p := newPipeline(t, fs, tt.root, "/out", Options{})

			sum, err := p.Run(context.Background(), tmpl.NewContext())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if exists(t, fs, "/out/b.txt") {
				t.Error("run continued after a fatal error")
			}
			for _, r := range sum.Results {
				if r.Status == "" {
					t.Errorf("result %s has no status", r.TemplateID)
				}
			}
		})
	}
}

func TestPipeline_Hooks(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, map[string]string{
		"/tpl/a.txt.tmpl": "a",
		"/tpl/b.txt.tmpl": "b",
		"/tpl/c.txt.tmpl": "c",
		"/tpl/d.txt.tmpl": "d",
	})
	p := newPipeline(t, fs, "/tpl", "/out", Options{})

	var events []string
	h := p.Hooks()
	h.OnBeforeGenerate(func(context.Context, *tmpl.Context) error {
		events = append(events, "before-generate")
		return nil
	})
	h.OnBeforeFileWrite(func(ev *FileEvent) error {
		events = append(events, "before:"+ev.TemplateID)
		switch ev.TemplateID {
		case "b.txt.tmpl":
			return errors.Join(ErrVeto, errors.New("not today"))
		case "c.txt.tmpl":
			return errors.New("boom")
		}
		ev.Content = []byte(strings.ToUpper(string(ev.Content)))
		return nil
	})
	h.OnAfterFileWrite(func(ev FileEvent, r Result) error {
		events = append(events, "after:"+ev.TemplateID)
		if ev.TemplateID == "d.txt.tmpl" {
			return errors.New("after failed")
		}
		return nil
	})
	h.OnFailure(func(r Result) {
		events = append(events, "error:"+r.TemplateID)
	})
	h.OnAfterGenerate(func(s *Summary) error {
		events = append(events, "after-generate")
		return nil
	})

	sum, err := p.Run(context.Background(), tmpl.NewContext())
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		"before-generate",
		"before:a.txt.tmpl", "after:a.txt.tmpl",
		"before:b.txt.tmpl",
		"before:c.txt.tmpl", "error:c.txt.tmpl",
		"before:d.txt.tmpl", "after:d.txt.tmpl", "error:d.txt.tmpl",
		"after-generate",
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v\nwant %v", events, want)
	}

	if got := readFile(t, fs, "/out/a.txt"); got != "A" {
		t.Errorf("transformed content = %q, want %q", got, "A")
	}
	if sum.Results[1].Status != StatusSkipped {
		t.Errorf("vetoed result = %+v", sum.Results[1])
	}
	if exists(t, fs, "/out/b.txt") || exists(t, fs, "/out/c.txt") {
		t.Error("vetoed or failed file was written")
	}
	if sum.Generated != 1 || sum.Skipped != 1 || sum.Failed != 2 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestPipeline_BeforeGenerateAborts(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, map[string]string{"/tpl/a.txt.tmpl": "a"})
	p := newPipeline(t, fs, "/tpl", "/out", Options{})
	p.Hooks().OnBeforeGenerate(func(context.Context, *tmpl.Context) error {
		return errors.New("not ready")
	})

	sum, err := p.Run(context.Background(), tmpl.NewContext())
	if !errors.Is(err, ErrBeforeGenerate) {
		t.Fatalf("Run() error = %v, want ErrBeforeGenerate", err)
	}
	if len(sum.Results) != 0 || exists(t, fs, "/out/a.txt") {
		t.Error("files were processed after the hook failed")
	}
}

func TestPipeline_DryRun(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, map[string]string{
		"/tpl/a.txt.tmpl":  "a",
		"/tpl/b.json.tmpl": "not json",
		"/out/a.txt":       "old",
	})
	p := newPipeline(t, fs, "/tpl", "/out", Options{DryRun: true, Overwrite: true, Backup: true, Validate: true})

	sum, err := p.Run(context.Background(), tmpl.NewContext())
	if err != nil {
		t.Fatal(err)
	}

	for _, r := range sum.Results {
		if r.Status != StatusGenerated || !r.DryRun || r.Path == "" {
			t.Errorf("result = %+v, want planned generation", r)
		}
	}
	if got := readFile(t, fs, "/out/a.txt"); got != "old" {
		t.Errorf("dry run changed a file to %q", got)
	}
	if exists(t, fs, "/out/b.json") || len(sum.Files) != 0 {
		t.Error("dry run wrote files")
	}
	if matches, _ := afero.Glob(fs, "/out/*.bak"); len(matches) != 0 {
		t.Errorf("dry run made backups %v", matches)
	}
}

func TestPipeline_Cancelled(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, map[string]string{"/tpl/a.txt.tmpl": "a"})
	p := newPipeline(t, fs, "/tpl", "/out", Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := p.Run(ctx, tmpl.NewContext())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(sum.Results) != 0 {
		t.Errorf("results = %v, want none", sum.Results)
	}
}

func TestPipeline_Idempotent(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, map[string]string{
		"/tpl/list.txt.tmpl": "{{#each items as item index}}{{item}}-{{index}};{{/each}}",
	})
	vars := tmpl.NewContext(map[string]any{"items": []any{"a", "b", "c"}})

	p := newPipeline(t, fs, "/tpl", "/out", Options{Overwrite: true})
	for range 2 {
		if _, err := p.Run(context.Background(), vars); err != nil {
			t.Fatal(err)
		}
		if got := readFile(t, fs, "/out/list.txt"); got != "a-0;b-1;c-2;" {
			t.Errorf("output = %q", got)
		}
	}
}

func TestPipeline_History(t *testing.T) {
	t.Parallel()

	history, err := state.Open(filepath.Join(t.TempDir(), state.DBName))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = history.Close() })

	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, map[string]string{
		"/tpl/a.txt.tmpl": "a",
		"/tpl/b.txt.tmpl": "b",
		"/out/b.txt":      "existing",
	})
	p := newPipeline(t, fs, "/tpl", "/out", Options{Stage: "web"}).WithHistory(history)

	ctx := context.Background()
	sum, err := p.Run(ctx, tmpl.NewContext())
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.RunIDs) != 1 {
		t.Fatalf("RunIDs = %v", sum.RunIDs)
	}
	runID := sum.RunIDs[0]

	run, err := history.GetRun(ctx, runID)
	if err != nil || run == nil {
		t.Fatalf("GetRun() = %v, %v", run, err)
	}
	if run.Status != state.StatusCompleted || run.Stage != "web" || run.Generated != 1 || run.Skipped != 1 {
		t.Errorf("run = %+v", run)
	}
	if sum.Results[0].State != StateRecorded {
		t.Errorf("State = %s, want recorded", sum.Results[0].State)
	}

	files, err := history.RunFiles(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Path != "/out/a.txt" || files[0].Size != 1 {
		t.Fatalf("files = %+v", files)
	}

	removed, err := CleanupRun(ctx, fs, history, runID, discard())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(removed, []string{"/out/a.txt"}) {
		t.Errorf("removed = %v", removed)
	}
	if exists(t, fs, "/out/a.txt") || !exists(t, fs, "/out/b.txt") {
		t.Error("cleanup removed the wrong files")
	}

	files, err = history.RunFiles(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if !files[0].Removed {
		t.Error("file not marked removed")
	}

	again, err := CleanupRun(ctx, fs, history, runID, discard())
	if err != nil || len(again) != 0 {
		t.Errorf("second cleanup = %v, %v", again, err)
	}
}
