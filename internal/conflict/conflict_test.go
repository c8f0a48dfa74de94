package conflict

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/AntoineGS/tidygen/internal/testutil"
)

func TestResolver_ShouldWrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		overwrite bool
		hook      Hook
		path      string
		want      bool
	}{
		{"missing destination", false, nil, "/out/new.txt", true},
		{"existing with default policy", false, nil, "/out/old.txt", false},
		{"existing with overwrite", true, nil, "/out/old.txt", true},
		{"overwrite ignores hook", true, SkipHook, "/out/old.txt", true},
		{"hook overwrite", false, OverwriteHook, "/out/old.txt", true},
		{"hook skip", false, SkipHook, "/out/old.txt", false},
		{"hook rename", false, RenameHook, "/out/old.txt", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fs := testutil.MemFs(t, map[string]string{"/out/old.txt": "old"})
			r := NewResolver(fs, tt.overwrite, tt.hook)

			if got := r.ShouldWrite(tt.path, nil); got != tt.want {
				t.Errorf("ShouldWrite(%s) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestResolver_HookNotCalledForMissingPath(t *testing.T) {
	t.Parallel()

	called := false
	hook := HookFunc(func(Conflict) (Decision, error) {
		called = true
		return Decision{Action: Overwrite}, nil
	})

	r := NewResolver(afero.NewMemMapFs(), false, hook)
	if !r.ShouldWrite("/out/a", nil) {
		t.Error("ShouldWrite() = false for a missing path")
	}
	if called {
		t.Error("hook consulted for a missing path")
	}
}

func TestResolver_HookSeesContent(t *testing.T) {
	t.Parallel()

	fs := testutil.MemFs(t, map[string]string{"/out/a.txt": "old\n"})

	var seen Conflict
	r := NewResolver(fs, false, HookFunc(func(c Conflict) (Decision, error) {
		seen = c
		return Decision{Action: Skip}, nil
	}))

	out, err := r.Resolve(Conflict{Path: "/out/a.txt", TemplateID: "a.txt.tmpl", Existing: []byte("old\n"), Proposed: []byte("new\n")})
	if err != nil {
		t.Fatal(err)
	}
	if out.Write || !out.Exists || out.Action != Skip {
		t.Errorf("outcome = %+v, want skip of existing file", out)
	}
	if seen.TemplateID != "a.txt.tmpl" || string(seen.Proposed) != "new\n" {
		t.Errorf("hook saw %+v", seen)
	}
}

func TestResolver_HookError(t *testing.T) {
	t.Parallel()

	fs := testutil.MemFs(t, map[string]string{"/out/a": "x"})
	boom := errors.New("boom")
	r := NewResolver(fs, false, HookFunc(func(Conflict) (Decision, error) {
		return Decision{}, boom
	}))

	out, err := r.Resolve(Conflict{Path: "/out/a"})
	if !errors.Is(err, boom) {
		t.Errorf("Resolve() error = %v, want boom", err)
	}
	if out.Write {
		t.Error("hook failure must not write")
	}

	bad := NewResolver(fs, false, HookFunc(func(Conflict) (Decision, error) {
		return Decision{Action: "merge"}, nil
	}))
	if _, err := bad.Resolve(Conflict{Path: "/out/a"}); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("Resolve() error = %v, want ErrUnknownAction", err)
	}
}

func TestResolver_Rename(t *testing.T) {
	t.Parallel()

	fs := testutil.MemFs(t, map[string]string{
		"/out/config.yaml":   "a",
		"/out/config.1.yaml": "b",
		"/out/Makefile":      "c",
		"/out/.env":          "d",
	})
	r := NewResolver(fs, false, RenameHook)

	tests := []struct {
		path string
		want string
	}{
		{"/out/config.yaml", "/out/config.2.yaml"},
		{"/out/config.yaml", "/out/config.3.yaml"},
		{"/out/Makefile", "/out/Makefile.1"},
		{"/out/.env", "/out/.env.1"},
	}

	for _, tt := range tests {
		out, err := r.Resolve(Conflict{Path: tt.path})
		if err != nil {
			t.Fatal(err)
		}
		if out.Action != Rename || out.Path != tt.want || !out.Write {
			t.Errorf("Resolve(%s) = %+v, want rename to %s", tt.path, out, tt.want)
		}
	}
}

func TestResolver_RenameToExplicitPath(t *testing.T) {
	t.Parallel()

	fs := testutil.MemFs(t, map[string]string{"/out/a.txt": "a"})
	r := NewResolver(fs, false, HookFunc(func(Conflict) (Decision, error) {
		return Decision{Action: Rename, Path: "/out/a.local.txt"}, nil
	}))

	out, err := r.Resolve(Conflict{Path: "/out/a.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Path != "/out/a.local.txt" {
		t.Errorf("Path = %s, want /out/a.local.txt", out.Path)
	}
	if !r.Claimed("/out/a.local.txt") {
		t.Error("renamed path not claimed")
	}
}

func TestResolver_Collision(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		overwrite bool
		hook      Hook
		wantWrite bool
		wantPath  string
	}{
		{"no hook skips", false, nil, false, "/out/a.txt"},
		{"overwrite still skips", true, nil, false, "/out/a.txt"},
		{"overwrite hook skips", false, OverwriteHook, false, "/out/a.txt"},
		{"rename hook renames", false, RenameHook, true, "/out/a.1.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := NewResolver(afero.NewMemMapFs(), tt.overwrite, tt.hook)
			r.Claim("/out/a.txt")

			out, err := r.Resolve(Conflict{Path: "/out/a.txt"})
			if err != nil {
				t.Fatal(err)
			}
			if !out.Collision {
				t.Error("Collision = false, want true")
			}
			if out.Write != tt.wantWrite || out.Path != tt.wantPath {
				t.Errorf("Resolve() = %+v, want write=%v path=%s", out, tt.wantWrite, tt.wantPath)
			}
		})
	}
}

func TestResolver_Backup(t *testing.T) {
	t.Parallel()

	fs := testutil.MemFs(t, map[string]string{"/out/app.json": `{"v":1}`})
	stamp := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	r := NewResolver(fs, true, nil).WithClock(func() time.Time { return stamp })

	first, err := r.Backup("/out/app.json")
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if first != "/out/app.json.20240506T070809Z.bak" {
		t.Errorf("backup path = %s", first)
	}

	got, _ := afero.ReadFile(fs, first)
	if string(got) != `{"v":1}` {
		t.Errorf("backup content = %q", got)
	}

	second, err := r.Backup("/out/app.json")
	if err != nil {
		t.Fatal(err)
	}
	if second != "/out/app.json.20240506T070809Z.1.bak" {
		t.Errorf("second backup path = %s", second)
	}

	if _, err := r.Backup("/out/missing"); err == nil {
		t.Error("Backup() of a missing file succeeded")
	}
}

func TestConflict_Diff(t *testing.T) {
	t.Parallel()

	c := Conflict{
		Path:     "a.txt",
		Existing: []byte("one\ntwo\nthree\n"),
		Proposed: []byte("one\n2\nthree\n"),
	}

	want := "--- a.txt (existing)\n+++ a.txt (generated)\n  one\n- two\n+ 2\n  three\n"
	if got := c.Diff(); got != want {
		t.Errorf("Diff() =\n%s\nwant\n%s", got, want)
	}

	same := Conflict{Path: "a", Existing: []byte("x\n"), Proposed: []byte("x\n")}
	if got := same.Diff(); !strings.HasPrefix(got, "No differences") {
		t.Errorf("Diff() of equal content = %q", got)
	}
}

func TestParseAction(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Action{"skip": Skip, " Overwrite ": Overwrite, "RENAME": Rename} {
		got, err := ParseAction(in)
		if err != nil || got != want {
			t.Errorf("ParseAction(%q) = %q, %v; want %q", in, got, err, want)
		}
	}

	if _, err := ParseAction("prompt"); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("ParseAction(prompt) error = %v", err)
	}
}
