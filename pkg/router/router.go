package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vango-dev/bigpipe/pkg/pagelet"
)

// ErrNotFound is returned by Route when nothing matched and the router has
// no not-found definition.
var ErrNotFound = errors.New("router: no pagelet matched")

// Recorder observes routing decisions. The Prometheus collector in
// pkg/middleware implements it.
type Recorder interface {
	CacheLookup(hit bool)
	Authorization(pagelet string, admitted bool)
}

// Router resolves requests against an immutable set of definitions.
type Router struct {
	defs     []*pagelet.Definition
	notFound *pagelet.Definition
	pool     *pagelet.Pool
	cache    *Cache
	recorder Recorder
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithCache shares a resolution cache between routers. A nil cache turns
// caching off.
func WithCache(c *Cache) Option {
	return func(r *Router) { r.cache = c }
}

// WithRecorder installs a routing metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Router) { r.recorder = rec }
}

// WithLogger sets the logger used for routing decisions.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New creates a router over defs, which are scanned in order. notFound is
// appended to every resolution; it may be nil.
func New(defs []*pagelet.Definition, notFound *pagelet.Definition, pool *pagelet.Pool, opts ...Option) *Router {
	r := &Router{
		defs:     defs,
		notFound: notFound,
		pool:     pool,
		cache:    NewCache(),
		logger:   slog.Default().With("component", "router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pool == nil {
		r.pool = pagelet.NewPool(pagelet.DefaultPoolSize)
	}
	return r
}

// Definitions returns the routed definitions in scan order.
func (r *Router) Definitions() []*pagelet.Definition {
	return append([]*pagelet.Definition(nil), r.defs...)
}

// Cache returns the resolution cache.
func (r *Router) Cache() *Cache {
	return r.cache
}

// Resolve returns the candidate definitions for a request, in registration
// order, terminated by the not-found definition. A non-empty id selects the
// first definition with that id and ignores method and path.
func (r *Router) Resolve(method, path, id string) []*pagelet.Definition {
	key := Key(method, path)
	if id != "" {
		key = IDKey(id)
	}

	if r.cache == nil {
		return r.withNotFound(r.scan(method, path, id))
	}

	found, hit := r.cache.Get(key)
	if r.recorder != nil {
		r.recorder.CacheLookup(hit)
	}
	if !hit {
		found = r.scan(method, path, id)
		// Empty walks are not memoized so arbitrary 404 paths cannot grow the cache.
		if len(found) > 0 {
			r.cache.Set(key, found)
		}
	}
	return r.withNotFound(found)
}

func (r *Router) withNotFound(found []*pagelet.Definition) []*pagelet.Definition {
	out := make([]*pagelet.Definition, len(found), len(found)+1)
	copy(out, found)
	if r.notFound != nil {
		out = append(out, r.notFound)
	}
	return out
}

func (r *Router) scan(method, path, id string) []*pagelet.Definition {
	if id != "" {
		for _, d := range r.defs {
			if d.ID() == id {
				return []*pagelet.Definition{d}
			}
		}
		return nil
	}

	var found []*pagelet.Definition
	for _, d := range r.defs {
		if d.Matches(method, path) {
			found = append(found, d)
		}
	}
	return found
}

// Route walks the candidates for r and returns the first admitted instance.
// Rejected instances go straight back to the pool. An authorization error
// aborts the walk. The not-found definition is admitted without asking.
func (r *Router) Route(ctx context.Context, req *http.Request, w http.ResponseWriter, id string) (*pagelet.Instance, error) {
	path := req.URL.Path
	candidates := r.Resolve(req.Method, path, id)

	for _, def := range candidates {
		in := r.pool.Acquire(def)

		var params map[string]string
		if def != r.notFound && def.Pattern() != nil {
			params, _ = def.Pattern().Match(path)
		}
		in.Bind(req, w, params)

		if def == r.notFound {
			in.SetAuthorized(true)
			r.logger.Debug("no pagelet matched", "method", req.Method, "path", path)
			return in, nil
		}

		auth, ok := def.Producer().(pagelet.Authorizer)
		if !ok {
			in.SetAuthorized(true)
			r.logger.Debug("pagelet routed", "pagelet", def.Name(), "path", path)
			return in, nil
		}

		admitted, err := auth.Authorize(ctx, req, in)
		if err != nil {
			r.pool.Release(in)
			return nil, fmt.Errorf("router: authorize %s: %w", def.Name(), err)
		}
		if r.recorder != nil {
			r.recorder.Authorization(def.Name(), admitted)
		}
		if admitted {
			in.SetAuthorized(true)
			r.logger.Debug("pagelet routed", "pagelet", def.Name(), "path", path)
			return in, nil
		}

		r.logger.Debug("pagelet rejected", "pagelet", def.Name(), "path", path)
		r.pool.Release(in)
	}

	return nil, ErrNotFound
}
