package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadVarsFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    map[string]any
		wantErr bool
	}{
		{"vars.yaml", "app:\n  name: shop\n  port: 8080\n", map[string]any{"app": map[string]any{"name": "shop", "port": 8080}}, false},
		{"vars.json", `{"tags": ["a", "b"], "debug": true}`, map[string]any{"tags": []any{"a", "b"}, "debug": true}, false},
		{"vars.toml", "name = \"shop\"\n[db]\nport = 5432\n", map[string]any{"name": "shop", "db": map[string]any{"port": int64(5432)}}, false},
		{"bad.yaml", "a: [", nil, true},
		{"bad.toml", "a = ", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}

			got, err := loadVarsFile(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("loadVarsFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("loadVarsFile() = %#v, want %#v", got, tt.want)
			}
		})
	}

	if _, err := loadVarsFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("loadVarsFile() of a missing file succeeded")
	}
}

func TestParseSets(t *testing.T) {
	t.Parallel()

	got, err := parseSets([]string{
		"name=Ada",
		"app.port=8080",
		"app.debug=true",
		"app.tags=[a, b]",
		"note=key: value",
		"empty=",
		"url=http://x?a=b",
	})
	if err != nil {
		t.Fatalf("parseSets() error = %v", err)
	}

	want := map[string]any{
		"name": "Ada",
		"app": map[string]any{
			"port":  8080,
			"debug": true,
			"tags":  []any{"a", "b"},
		},
		"note":  "key: value",
		"empty": "",
		"url":   "http://x?a=b",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseSets() = %#v, want %#v", got, want)
	}

	for _, bad := range [][]string{
		{"novalue"},
		{"=x"},
		{"a..b=1"},
		{"a=1", "a.b=2"},
	} {
		if _, err := parseSets(bad); err == nil {
			t.Errorf("parseSets(%q) succeeded", bad)
		}
	}
}
