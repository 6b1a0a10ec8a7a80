package registry

import (
	"context"
	"log/slog"

	bperrors "github.com/vango-dev/bigpipe/internal/errors"
	"github.com/vango-dev/bigpipe/pkg/pagelet"
)

// BeforeHook may rewrite a module before it is normalized.
type BeforeHook func(ctx context.Context, m *pagelet.Module) error

// AfterHook may replace a normalized definition.
type AfterHook func(ctx context.Context, def *pagelet.Definition) (*pagelet.Definition, error)

// Cataloger builds the asset catalog for the discovered definitions.
type Cataloger interface {
	Catalog(defs []*pagelet.Definition) error
}

// Preloader compiles views ahead of the first request.
type Preloader interface {
	Preload(names ...string) error
}

// Options configures discovery.
type Options struct {
	Before    []BeforeHook
	After     []AfterHook
	Cataloger Cataloger
	Views     Preloader
	Logger    *slog.Logger
}

// Discover runs discovery into a fresh registry.
func Discover(ctx context.Context, modules []pagelet.Module, opts Options) (*Snapshot, error) {
	return New().Discover(ctx, modules, opts)
}

// Discover normalizes modules into r and returns the frozen snapshot.
func (r *Registry) Discover(ctx context.Context, modules []pagelet.Module, opts Options) (*Snapshot, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "registry")
	}

	for _, m := range modules {
		if err := ctx.Err(); err != nil {
			return nil, bperrors.New("B100").Wrap(err)
		}

		def, err := transform(ctx, m, opts)
		if err != nil {
			return nil, err
		}
		if err := r.Add(def); err != nil {
			return nil, err
		}
		logger.Debug("pagelet discovered", "pagelet", def.Name(), "path", def.Path(), "mode", def.Mode())
	}

	snap := r.Snapshot()
	bindStatus(snap)

	if opts.Views != nil {
		var views []string
		for _, root := range snap.All() {
			root.Walk(func(d *pagelet.Definition) {
				if d.View() != "" {
					views = append(views, d.View())
				}
			})
		}
		if err := opts.Views.Preload(views...); err != nil {
			return nil, bperrors.New("B100").WithDetail("compiling views").Wrap(err)
		}
	}

	if opts.Cataloger != nil {
		if err := opts.Cataloger.Catalog(snap.All()); err != nil {
			if bperrors.HasCode(err, "B161") {
				return nil, err
			}
			return nil, bperrors.New("B160").Wrap(err)
		}
	}

	logger.Info("discovery complete",
		"pagelets", len(snap.defs),
		"not_found", snap.NotFound.Name(),
		"error", snap.Error.Name(),
		"bootstrap", snap.Bootstrap.Name())
	return snap, nil
}

func transform(ctx context.Context, m pagelet.Module, opts Options) (*pagelet.Definition, error) {
	for _, hook := range opts.Before {
		if err := hook(ctx, &m); err != nil {
			return nil, bperrors.New("B113").WithDetailf("before %q", m.Name).Wrap(err)
		}
	}

	def, err := pagelet.Normalize(m)
	if err != nil {
		return nil, err
	}

	for _, hook := range opts.After {
		next, err := hook(ctx, def)
		if err != nil {
			return nil, bperrors.New("B113").WithDetailf("after %q", def.Name()).Wrap(err)
		}
		if next != nil {
			def = next
		}
	}
	return def, nil
}

// bindStatus picks the status pagelets. A definition whose path is literally
// /404 (or /500) wins over one that merely matches it; otherwise the first
// match in registration order is used, then the built-in default.
func bindStatus(s *Snapshot) {
	s.NotFound = statusFor(s.defs, "/404")
	if s.NotFound == nil {
		s.NotFound = DefaultNotFound()
	}
	s.Error = statusFor(s.defs, "/500")
	if s.Error == nil {
		s.Error = DefaultError()
	}
	if d, ok := s.Lookup(BootstrapName); ok {
		s.Bootstrap = d
	} else {
		s.Bootstrap = DefaultBootstrap()
	}
}

func statusFor(defs []*pagelet.Definition, path string) *pagelet.Definition {
	var first *pagelet.Definition
	for _, d := range defs {
		if !d.Routable() {
			continue
		}
		if d.Path() == path {
			return d
		}
		if first == nil && d.Pattern().Test(path) {
			first = d
		}
	}
	return first
}
