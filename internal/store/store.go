// Package store loads template files, their metadata sidecars and partials
// from a template root.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	tmpl "github.com/AntoineGS/tidygen/internal/template"
)

// MetaSuffix is appended to a template's file name to locate its metadata.
const MetaSuffix = ".meta.yaml"

// DefaultPartialsDir is the directory under the root that holds partials.
const DefaultPartialsDir = "_partials"

// Sentinel errors
var (
	// ErrTemplateRoot means the template root is missing or is not a directory.
	ErrTemplateRoot = errors.New("template root unavailable")

	// ErrMetadata means a metadata sidecar could not be parsed.
	ErrMetadata = errors.New("malformed template metadata")

	// ErrNotFound means no template exists under the requested ID.
	ErrNotFound = errors.New("template not found")
)

// Metadata is what a template declares about itself in its sidecar file.
type Metadata struct {
	Defaults    map[string]any `yaml:"defaults"`
	Description string         `yaml:"description"`
	Kind        string         `yaml:"kind"`
	Required    []string       `yaml:"required"`
	Optional    []string       `yaml:"optional"`
}

// Template is a loaded template file. ID is the slash-separated path relative
// to the template root.
type Template struct {
	ID         string
	Content    string
	SourcePath string
	Metadata   Metadata
	IsTemplate bool
}

// Options configures a Store.
type Options struct {
	Root        string
	Suffix      string
	PartialsDir string
	Ignore      []string
	NoCache     bool
}

// Store reads templates through an afero.Fs and caches them by ID.
type Store struct {
	fs     afero.Fs
	opts   Options
	logger *slog.Logger

	mu        sync.RWMutex
	templates map[string]*Template
	partials  map[string]*tmpl.Partial
}

// New creates a Store over fsys.
func New(fsys afero.Fs, opts Options) *Store {
	if opts.Suffix == "" {
		opts.Suffix = tmpl.DefaultSuffix
	}
	if opts.PartialsDir == "" {
		opts.PartialsDir = DefaultPartialsDir
	}

	return &Store{
		fs:        fsys,
		opts:      opts,
		logger:    slog.Default(),
		templates: make(map[string]*Template),
		partials:  make(map[string]*tmpl.Partial),
	}
}

// WithLogger sets a custom logger
func (s *Store) WithLogger(logger *slog.Logger) *Store {
	s.logger = logger
	return s
}

// Root returns the template root.
func (s *Store) Root() string {
	return s.opts.Root
}

// Suffix returns the template marker suffix.
func (s *Store) Suffix() string {
	return s.opts.Suffix
}

// CheckRoot verifies the template root is a readable directory.
func (s *Store) CheckRoot() error {
	info, err := s.fs.Stat(s.opts.Root)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTemplateRoot, s.opts.Root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrTemplateRoot, s.opts.Root)
	}

	return nil
}

// ListAll returns the ID of every template and plain file under the root in
// lexical traversal order. Partials, metadata sidecars, hidden entries and
// ignored names are left out.
func (s *Store) ListAll() ([]string, error) {
	if err := s.CheckRoot(); err != nil {
		return nil, err
	}

	var ids []string

	err := afero.Walk(s.fs, s.opts.Root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTemplateRoot, err)
		}
		if p == s.opts.Root {
			return nil
		}

		rel, err := filepath.Rel(s.opts.Root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if s.excluded(rel, info) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !info.IsDir() {
			ids = append(ids, rel)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

func (s *Store) excluded(rel string, info fs.FileInfo) bool {
	name := info.Name()

	switch {
	case strings.HasPrefix(name, "."):
		return true
	case info.IsDir() && rel == s.opts.PartialsDir:
		return true
	case !info.IsDir() && strings.HasSuffix(name, MetaSuffix):
		return true
	}

	for _, pattern := range s.opts.Ignore {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
	}

	return false
}

// Load returns the template with the given ID, reading it on first use.
func (s *Store) Load(id string) (*Template, error) {
	if !s.opts.NoCache {
		s.mu.RLock()
		t, ok := s.templates[id]
		s.mu.RUnlock()
		if ok {
			return t, nil
		}
	}

	src := filepath.Join(s.opts.Root, filepath.FromSlash(id))

	data, err := afero.ReadFile(s.fs, src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("reading template %s: %w", id, err)
	}

	md, err := s.readMetadata(src)
	if err != nil {
		return nil, err
	}

	t := &Template{
		ID:         id,
		Content:    string(data),
		SourcePath: src,
		IsTemplate: tmpl.IsTemplateFile(path.Base(id), s.opts.Suffix),
		Metadata:   md,
	}

	s.logger.Debug("loaded template",
		slog.String("id", id),
		slog.Bool("template", t.IsTemplate),
		slog.Int("required", len(md.Required)))

	if !s.opts.NoCache {
		s.mu.Lock()
		s.templates[id] = t
		s.mu.Unlock()
	}

	return t, nil
}

func (s *Store) readMetadata(src string) (Metadata, error) {
	var md Metadata

	metaPath := src + MetaSuffix
	data, err := afero.ReadFile(s.fs, metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return md, nil
		}
		return md, fmt.Errorf("%w: %s: %w", ErrMetadata, metaPath, err)
	}

	if err := yaml.Unmarshal(data, &md); err != nil {
		return md, fmt.Errorf("%w: %s: %w", ErrMetadata, metaPath, err)
	}

	return md, nil
}

// Partial implements template.PartialSource. A partial named "header" is
// found as _partials/header, _partials/header.tmpl or the first
// _partials/header.* in lexical order; its sidecar defaults become the
// partial's overlay.
func (s *Store) Partial(name string) (*tmpl.Partial, error) {
	if !s.opts.NoCache {
		s.mu.RLock()
		p, ok := s.partials[name]
		s.mu.RUnlock()
		if ok {
			return p, nil
		}
	}

	src, err := s.findPartial(name)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, src)
	if err != nil {
		return nil, fmt.Errorf("reading partial %s: %w", name, err)
	}

	md, err := s.readMetadata(src)
	if err != nil {
		return nil, err
	}

	p := &tmpl.Partial{Name: name, Content: string(data), Defaults: md.Defaults}

	if !s.opts.NoCache {
		s.mu.Lock()
		s.partials[name] = p
		s.mu.Unlock()
	}

	return p, nil
}

func (s *Store) findPartial(name string) (string, error) {
	clean := path.Clean(name)
	if clean == "." || strings.HasPrefix(clean, "../") || clean == ".." || path.IsAbs(clean) {
		return "", fmt.Errorf("%w: %s", tmpl.ErrPartialNotFound, name)
	}

	base := filepath.Join(s.opts.Root, s.opts.PartialsDir, filepath.FromSlash(clean))

	for _, candidate := range []string{base, base + s.opts.Suffix} {
		if info, err := s.fs.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	matches, err := afero.Glob(s.fs, base+".*")
	if err == nil {
		slices.Sort(matches)
		for _, m := range matches {
			if !strings.HasSuffix(m, MetaSuffix) {
				return m, nil
			}
		}
	}

	return "", fmt.Errorf("%w: %s", tmpl.ErrPartialNotFound, name)
}

// ClearCache drops every cached template and partial.
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.templates = make(map[string]*Template)
	s.partials = make(map[string]*tmpl.Partial)
}

// ValidateContext returns the keys md declares as required that ctx does not
// resolve.
func (s *Store) ValidateContext(ctx *tmpl.Context, md Metadata) []string {
	return MissingKeys(ctx, md)
}

// MissingKeys returns md's required keys absent from ctx, in declared order.
func MissingKeys(ctx *tmpl.Context, md Metadata) []string {
	var missing []string

	for _, key := range md.Required {
		if !ctx.Has(key) {
			missing = append(missing, key)
		}
	}

	return missing
}
