package assets

import (
	"strings"
	"sync"

	"github.com/vango-dev/bigpipe/internal/errors"
	"github.com/vango-dev/bigpipe/pkg/pagelet"
)

// Catalog holds the resolved dependencies of every discovered page.
type Catalog struct {
	resolver Resolver

	mu        sync.RWMutex
	pages     map[*pagelet.Definition]pagelet.Dependencies
	own       map[*pagelet.Definition]pagelet.Dependencies
	libraries []string
}

// NewCatalog creates a catalog resolving references with r. A nil resolver
// leaves references untouched.
func NewCatalog(r Resolver) *Catalog {
	if r == nil {
		r = NewPassthroughResolver("")
	}
	return &Catalog{
		resolver: r,
		pages:    make(map[*pagelet.Definition]pagelet.Dependencies),
		own:      make(map[*pagelet.Definition]pagelet.Dependencies),
	}
}

// AddLibrary adds a script every page loads before its own scripts.
// Libraries must be added before Catalog runs.
func (c *Catalog) AddLibrary(src string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.libraries {
		if l == src {
			return
		}
	}
	c.libraries = append(c.libraries, src)
}

// Catalog resolves the dependencies of every definition tree in defs.
// A page depends on its own assets followed by its descendants' assets in
// declaration order, without duplicates.
func (c *Catalog) Catalog(defs []*pagelet.Definition) error {
	pages := make(map[*pagelet.Definition]pagelet.Dependencies, len(defs))
	own := make(map[*pagelet.Definition]pagelet.Dependencies)

	c.mu.RLock()
	libraries := append([]string(nil), c.libraries...)
	c.mu.RUnlock()

	for _, root := range defs {
		var css, js orderedSet
		for _, lib := range libraries {
			js.add(c.resolver.Asset(lib))
		}

		var walkErr error
		root.Walk(func(d *pagelet.Definition) {
			if walkErr != nil {
				return
			}
			deps, err := c.resolve(d)
			if err != nil {
				walkErr = err
				return
			}
			own[d] = deps
			css.add(deps.CSS...)
			js.add(deps.JS...)
		})
		if walkErr != nil {
			return walkErr
		}

		pages[root] = pagelet.Dependencies{CSS: css.items, JS: js.items}
	}

	c.mu.Lock()
	c.pages = pages
	c.own = own
	c.mu.Unlock()
	return nil
}

func (c *Catalog) resolve(d *pagelet.Definition) (pagelet.Dependencies, error) {
	var deps pagelet.Dependencies
	for _, ref := range d.CSS() {
		if err := validRef(d, ref); err != nil {
			return deps, err
		}
		deps.CSS = append(deps.CSS, c.resolver.Asset(ref))
	}
	for _, ref := range d.JS() {
		if err := validRef(d, ref); err != nil {
			return deps, err
		}
		deps.JS = append(deps.JS, c.resolver.Asset(ref))
	}
	return deps, nil
}

func validRef(d *pagelet.Definition, ref string) error {
	if strings.TrimSpace(ref) == "" {
		return errors.New("B161").WithDetailf("pagelet %q declares an empty asset", d.Name())
	}
	for _, seg := range strings.Split(ref, "/") {
		if seg == ".." {
			return errors.New("B161").WithDetailf("pagelet %q declares %q", d.Name(), ref)
		}
	}
	return nil
}

// Page returns the dependencies of the page the instance belongs to.
// Definitions that were not cataloged yield only the libraries.
func (c *Catalog) Page(in *pagelet.Instance) pagelet.Dependencies {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if deps, ok := c.pages[in.Definition()]; ok {
		return copyDeps(deps)
	}

	var js orderedSet
	for _, lib := range c.libraries {
		js.add(c.resolver.Asset(lib))
	}
	return pagelet.Dependencies{JS: js.items}
}

// Own returns the resolved assets a single definition declares.
func (c *Catalog) Own(def *pagelet.Definition) pagelet.Dependencies {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyDeps(c.own[def])
}

func copyDeps(d pagelet.Dependencies) pagelet.Dependencies {
	return pagelet.Dependencies{
		CSS: append([]string(nil), d.CSS...),
		JS:  append([]string(nil), d.JS...),
	}
}

type orderedSet struct {
	items []string
	seen  map[string]bool
}

func (s *orderedSet) add(items ...string) {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	for _, it := range items {
		if !s.seen[it] {
			s.seen[it] = true
			s.items = append(s.items, it)
		}
	}
}
