package generator

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"

	"github.com/AntoineGS/tidygen/internal/helpers"
	tmpl "github.com/AntoineGS/tidygen/internal/template"
	"github.com/AntoineGS/tidygen/internal/testutil"
)

func TestCompose(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		vars      map[string]any
		wantFiles []string
	}{
		{
			name:      "gated stage runs",
			vars:      map[string]any{"features": map[string]any{"api": true}},
			wantFiles: []string{"/out/web/index.html", "/out/api/api.go"},
		},
		{
			name:      "gated stage skipped",
			vars:      map[string]any{"features": map[string]any{"api": false}},
			wantFiles: []string{"/out/web/index.html"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fs := afero.NewMemMapFs()
			testutil.WriteFiles(t, fs, map[string]string{
				"/tpl/web/index.html.tmpl": "<h1>hi</h1>",
				"/tpl/api/api.go.tmpl":     "package api\n",
			})

			web := newPipeline(t, fs, "/tpl/web", "/out/web", Options{Stage: "web"})
			api := newPipeline(t, fs, "/tpl/api", "/out/api", Options{Stage: "api"})

			c := Compose(tmpl.NewEngine(helpers.New(), nil),
				Stage{Pipeline: web},
				Stage{Pipeline: api, When: "{{#if features.api}}true{{/if}}"},
			).WithLogger(discard())

			sum, err := c.Run(context.Background(), tmpl.NewContext(tt.vars))
			if err != nil {
				t.Fatal(err)
			}

			if len(sum.Files) != len(tt.wantFiles) {
				t.Fatalf("Files = %v, want %v", sum.Files, tt.wantFiles)
			}
			for i, f := range tt.wantFiles {
				if sum.Files[i] != f {
					t.Errorf("Files[%d] = %s, want %s", i, sum.Files[i], f)
				}
			}
			if sum.Generated != len(tt.wantFiles) {
				t.Errorf("Generated = %d", sum.Generated)
			}
			if sum.Results[0].Stage != "web" {
				t.Errorf("Stage = %q, want web", sum.Results[0].Stage)
			}

			removed, err := c.Cleanup()
			if err != nil {
				t.Fatal(err)
			}
			if len(removed) != len(tt.wantFiles) {
				t.Errorf("removed = %v", removed)
			}
		})
	}
}

func TestCompose_FatalStopsLaterStages(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, map[string]string{
		"/tpl/one/_partials/self.tmpl": "{{> self}}",
		"/tpl/one/a.txt.tmpl":          "{{> self}}",
		"/tpl/two/b.txt.tmpl":          "b",
	})

	c := Compose(nil,
		Stage{Pipeline: newPipeline(t, fs, "/tpl/one", "/out", Options{Stage: "one"})},
		Stage{Pipeline: newPipeline(t, fs, "/tpl/two", "/out", Options{Stage: "two"})},
	).WithLogger(discard())

	sum, err := c.Run(context.Background(), tmpl.NewContext())
	if !errors.Is(err, tmpl.ErrPartialCycle) {
		t.Fatalf("Run() error = %v, want ErrPartialCycle", err)
	}
	if len(sum.Results) != 1 || sum.Failed != 1 {
		t.Errorf("results = %+v", sum.Results)
	}
	if exists(t, fs, "/out/b.txt") {
		t.Error("stage after the fatal error ran")
	}
}

func TestCompose_NilEngineDisablesGatedStages(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, map[string]string{"/tpl/a.txt.tmpl": "a"})

	c := Compose(nil,
		Stage{Pipeline: newPipeline(t, fs, "/tpl", "/out", Options{}), When: "{{#if x}}true{{/if}}"},
	).WithLogger(discard())

	sum, err := c.Run(context.Background(), tmpl.NewContext(map[string]any{"x": true}))
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Results) != 0 {
		t.Errorf("results = %v, want the stage skipped", sum.Results)
	}
}
