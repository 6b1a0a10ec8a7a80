package registry

import (
	"errors"
	"sync"

	bperrors "github.com/vango-dev/bigpipe/internal/errors"
	"github.com/vango-dev/bigpipe/pkg/pagelet"
)

// ErrFrozen is returned by Add once a snapshot was taken.
var ErrFrozen = errors.New("registry: registry is frozen")

// Registry is the append-only list of discovered definitions.
type Registry struct {
	mu     sync.Mutex
	defs   []*pagelet.Definition
	names  map[string]bool
	frozen bool
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{names: make(map[string]bool)}
}

// Add appends def. Top-level names must be unique.
func (r *Registry) Add(def *pagelet.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}
	if r.names[def.Name()] {
		return bperrors.New("B102").WithDetailf("pagelet %q", def.Name())
	}
	r.names[def.Name()] = true
	r.defs = append(r.defs, def)
	return nil
}

// Len returns the number of definitions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.defs)
}

// Snapshot freezes the registry and returns its contents. Status pagelets
// are left unbound; Discover fills them in.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
	return &Snapshot{defs: append([]*pagelet.Definition(nil), r.defs...)}
}

// Snapshot is the immutable result of discovery.
type Snapshot struct {
	defs []*pagelet.Definition

	NotFound  *pagelet.Definition
	Error     *pagelet.Definition
	Bootstrap *pagelet.Definition
}

// Definitions returns every definition in registration order.
func (s *Snapshot) Definitions() []*pagelet.Definition {
	return append([]*pagelet.Definition(nil), s.defs...)
}

// Routable returns the definitions that have a path, in registration order.
func (s *Snapshot) Routable() []*pagelet.Definition {
	var out []*pagelet.Definition
	for _, d := range s.defs {
		if d.Routable() {
			out = append(out, d)
		}
	}
	return out
}

// Lookup finds a top-level definition by name.
func (s *Snapshot) Lookup(name string) (*pagelet.Definition, bool) {
	for _, d := range s.defs {
		if d.Name() == name {
			return d, true
		}
	}
	return nil, false
}

// Status returns the definition rendering an HTTP status page.
func (s *Snapshot) Status(code int) (*pagelet.Definition, bool) {
	switch code {
	case 404:
		return s.NotFound, s.NotFound != nil
	case 500:
		return s.Error, s.Error != nil
	default:
		return nil, false
	}
}

// All returns the definitions plus any built-in status pagelets, which is
// the set the asset cataloger sees.
func (s *Snapshot) All() []*pagelet.Definition {
	out := s.Definitions()
	for _, d := range []*pagelet.Definition{s.NotFound, s.Error, s.Bootstrap} {
		if d != nil && !s.contains(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s *Snapshot) contains(def *pagelet.Definition) bool {
	for _, d := range s.defs {
		if d == def {
			return true
		}
	}
	return false
}
