package view

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sync"
)

// ErrUnsupportedView is returned for a view whose extension has no engine.
var ErrUnsupportedView = errors.New("view: unsupported view type")

// Renderer executes a compiled view against a template context.
type Renderer func(data any) (string, error)

// Engine compiles a view by name.
type Engine interface {
	Compile(name string) (Renderer, error)
}

// Set caches compiled views and picks an engine by extension.
type Set struct {
	engines map[string]Engine
	cache   bool

	mu       sync.RWMutex
	compiled map[string]Renderer
}

// SetOption configures a Set.
type SetOption func(*Set)

// WithEngine registers engine for a file extension (including the dot).
func WithEngine(ext string, engine Engine) SetOption {
	return func(s *Set) { s.engines[ext] = engine }
}

// WithCache toggles the compiled view cache.
func WithCache(enabled bool) SetOption {
	return func(s *Set) { s.cache = enabled }
}

// NewSet creates a Set reading views from fsys with the built-in engines.
func NewSet(fsys fs.FS, opts ...SetOption) *Set {
	html := NewHTMLEngine(fsys)
	s := &Set{
		engines: map[string]Engine{
			".html": html,
			".tmpl": html,
			".md":   NewMarkdownEngine(fsys),
		},
		cache:    true,
		compiled: make(map[string]Renderer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compile returns the renderer for name, compiling it on first use.
func (s *Set) Compile(name string) (Renderer, error) {
	if s.cache {
		s.mu.RLock()
		r, ok := s.compiled[name]
		s.mu.RUnlock()
		if ok {
			return r, nil
		}
	}

	engine, ok := s.engines[path.Ext(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedView, name)
	}
	r, err := engine.Compile(name)
	if err != nil {
		return nil, err
	}

	if s.cache {
		s.mu.Lock()
		s.compiled[name] = r
		s.mu.Unlock()
	}
	return r, nil
}

// Render compiles name if needed and executes it.
func (s *Set) Render(name string, data any) (string, error) {
	r, err := s.Compile(name)
	if err != nil {
		return "", err
	}
	return r(data)
}

// Preload compiles every name, failing on the first error. It is used at
// discovery time so broken views stop the server from starting.
func (s *Set) Preload(names ...string) error {
	for _, name := range names {
		if _, err := s.Compile(name); err != nil {
			return err
		}
	}
	return nil
}
