package bigpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/vango-dev/bigpipe/pkg/assets"
	"github.com/vango-dev/bigpipe/pkg/middleware"
	"github.com/vango-dev/bigpipe/pkg/pagelet"
	"github.com/vango-dev/bigpipe/pkg/pipe"
	"github.com/vango-dev/bigpipe/pkg/plugin"
	"github.com/vango-dev/bigpipe/pkg/realtime"
	"github.com/vango-dev/bigpipe/pkg/registry"
	"github.com/vango-dev/bigpipe/pkg/router"
	"github.com/vango-dev/bigpipe/pkg/view"
)

var (
	// ErrNotReady is returned before discovery completed.
	ErrNotReady = errors.New("bigpipe: pagelets were not discovered")

	// ErrUnsupportedStatus is returned by Status for codes without a
	// status pagelet.
	ErrUnsupportedStatus = errors.New("bigpipe: unsupported status code")

	// ErrStarted is returned when registering a plugin after discovery.
	ErrStarted = errors.New("bigpipe: plugins must be registered before discovery")

	// ErrNoRealtime is returned by Push when no hub is configured.
	ErrNoRealtime = errors.New("bigpipe: realtime is not configured")
)

// state is what one discovery produced. It is replaced as a whole.
type state struct {
	snap       *registry.Snapshot
	router     *router.Router
	controller *pipe.Controller
}

// Pipe is an http.Handler streaming discovered pages.
type Pipe struct {
	cfg    Config
	logger *slog.Logger

	chain   *middleware.Chain
	options *plugin.Options
	plugins *plugin.Host
	hooks   *pipe.Hooks
	pool    *pagelet.Pool
	catalog *assets.Catalog
	views   *view.Set

	mu      sync.Mutex
	modules []pagelet.Module
	state   atomic.Pointer[state]

	ready     chan struct{}
	readyOnce sync.Once
	addr      atomic.Value
}

// New creates a pipe and registers cfg.Plugins. Pagelets are discovered
// later, by Discover or Listen.
func New(cfg Config) (*Pipe, error) {
	cfg.applyDefaults()

	p := &Pipe{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "bigpipe"),
		chain:   middleware.NewChain(),
		options: plugin.NewOptions(cfg.Options),
		hooks:   &pipe.Hooks{},
		pool:    pagelet.NewPool(cfg.PoolSize),
		modules: append([]pagelet.Module(nil), cfg.Pagelets...),
		ready:   make(chan struct{}),
	}

	var resolver assets.Resolver
	if cfg.Manifest != nil {
		resolver = assets.NewResolver(cfg.Manifest, cfg.Static.Prefix)
	} else {
		resolver = assets.NewPassthroughResolver(cfg.Static.Prefix)
	}
	p.catalog = assets.NewCatalog(resolver)
	for _, lib := range cfg.Libraries {
		p.catalog.AddLibrary(lib)
	}

	if cfg.Views != nil {
		p.views = view.NewSet(cfg.Views)
	}

	if err := p.chain.Use("defaults", middleware.Defaults(cfg.PoweredBy)); err != nil {
		return nil, err
	}
	if err := p.chain.Use("compiler", middleware.Compiler(cfg.Assets, cfg.Static)); err != nil {
		return nil, err
	}
	if cfg.Metrics != nil {
		cfg.Metrics.WatchPool(p.pool)
		if err := p.chain.Use("metrics", cfg.Metrics); err != nil {
			return nil, err
		}
	}
	if cfg.Tracing {
		if err := p.chain.Use("tracing", middleware.OpenTelemetry(middleware.WithTracerName(cfg.TracerName))); err != nil {
			return nil, err
		}
	}

	p.plugins = plugin.NewHost(p, p.catalog, cfg.Logger.With("component", "plugin"))
	for _, np := range cfg.Plugins {
		if err := p.plugins.Register(np.Name, np.Plugin); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Use appends a middleware layer. Layers run after the built-in defaults
// and compiler layers, in the order they were added.
func (p *Pipe) Use(name string, l middleware.Layer) error {
	return p.chain.Use(name, l)
}

// Plugin registers a plugin. Plugins contribute page assets, so they must
// be registered before discovery.
func (p *Pipe) Plugin(name string, pl plugin.Plugin) error {
	if p.state.Load() != nil {
		return ErrStarted
	}
	return p.plugins.Register(name, pl)
}

// Plugins returns the plugin host.
func (p *Pipe) Plugins() *plugin.Host {
	return p.plugins
}

// Hooks returns the page lifecycle hooks.
func (p *Pipe) Hooks() *pipe.Hooks {
	return p.hooks
}

// Options returns the options shared with plugins.
func (p *Pipe) Options() *plugin.Options {
	return p.options
}

// Layers returns the middleware layer names in execution order.
func (p *Pipe) Layers() []string {
	return p.chain.Names()
}

// Pool returns the instance pool.
func (p *Pipe) Pool() *pagelet.Pool {
	return p.pool
}

// Snapshot returns the discovered pagelets, or nil before discovery.
func (p *Pipe) Snapshot() *registry.Snapshot {
	if st := p.state.Load(); st != nil {
		return st.snap
	}
	return nil
}

// Discover adds modules to the configured pagelets and runs discovery over
// all of them. On failure the previous discovery stays in effect.
func (p *Pipe) Discover(ctx context.Context, modules ...pagelet.Module) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	all := append(append([]pagelet.Module(nil), p.modules...), modules...)
	opts := registry.Options{
		Before:    p.cfg.Before,
		After:     p.cfg.After,
		Cataloger: p.catalog,
		Logger:    p.cfg.Logger.With("component", "registry"),
	}
	if p.views != nil {
		opts.Views = p.views
	}

	snap, err := registry.Discover(ctx, all, opts)
	if err != nil {
		return err
	}
	p.modules = all

	routerOpts := []router.Option{router.WithLogger(p.cfg.Logger.With("component", "router"))}
	if p.cfg.DisableCache {
		routerOpts = append(routerOpts, router.WithCache(nil))
	}
	if p.cfg.Metrics != nil {
		routerOpts = append(routerOpts, router.WithRecorder(p.cfg.Metrics))
	}

	ccfg := pipe.Config{
		Catalog:   p.catalog,
		Pool:      p.pool,
		ErrorPage: snap.Error,
		Bootstrap: snap.Bootstrap,
		Hooks:     p.hooks,
		Logger:    p.cfg.Logger.With("component", "pipe"),
		Title:     p.cfg.Title,
		Scripts:   p.plugins.Scripts,
	}
	if p.views != nil {
		ccfg.Views = p.views
	}
	if p.cfg.Realtime != nil {
		ccfg.Channels = p.cfg.Realtime
	}
	if p.cfg.Metrics != nil {
		ccfg.Recorder = p.cfg.Metrics
	}

	p.state.Store(&state{
		snap:       snap,
		router:     router.New(snap.Routable(), snap.NotFound, p.pool, routerOpts...),
		controller: pipe.NewController(ccfg),
	})
	return nil
}

// ServeHTTP passes the request through the middleware chain and streams the
// routed page.
func (p *Pipe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.cfg.Realtime != nil && r.URL.Path == p.cfg.RealtimePath {
		p.cfg.Realtime.ServeHTTP(w, r)
		return
	}

	st := p.state.Load()
	if st == nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	res := pipe.NewResponse(w)
	_, err := p.chain.Run(res, r, func(r *http.Request) error {
		return p.dispatch(st, res, r)
	})
	if err == nil {
		return
	}

	p.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	if res.Committed() {
		res.Finish()
		return
	}
	if serr := p.status(st, res, r, http.StatusInternalServerError, err); serr != nil {
		http.Error(res, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (p *Pipe) dispatch(st *state, w *pipe.Response, r *http.Request) error {
	in, err := st.router.Route(r.Context(), r, w, "")
	if errors.Is(err, router.ErrNotFound) {
		http.NotFound(w, r)
		return nil
	}
	if err != nil {
		return err
	}
	defer p.pool.Release(in)

	st.controller.Serve(r.Context(), in)
	return nil
}

// Status renders the 404 or 500 pagelet for r. data is available to the
// pagelet through Instance.Data.
func (p *Pipe) Status(w http.ResponseWriter, r *http.Request, code int, data any) error {
	st := p.state.Load()
	if st == nil {
		return ErrNotReady
	}
	return p.status(st, w, r, code, data)
}

func (p *Pipe) status(st *state, w http.ResponseWriter, r *http.Request, code int, data any) error {
	def, ok := st.snap.Status(code)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedStatus, code)
	}

	in := p.pool.Acquire(def)
	defer p.pool.Release(in)
	in.Bind(r, w, nil)
	in.SetAuthorized(true)
	in.SetData(data)
	st.controller.Serve(r.Context(), in)
	return nil
}

// Redirect answers the request of in with a redirect. A zero status means
// 301; noCache adds headers that keep clients from caching it.
func (p *Pipe) Redirect(in *pagelet.Instance, location string, status int, noCache bool) {
	pipe.Redirect(in, location, status, noCache)
}

// Push sends msg over the realtime channel id.
func (p *Pipe) Push(id string, msg realtime.Message) error {
	if p.cfg.Realtime == nil {
		return ErrNoRealtime
	}
	return p.cfg.Realtime.Push(id, msg)
}

// Ready is closed once Listen or Serve accepts connections.
func (p *Pipe) Ready() <-chan struct{} {
	return p.ready
}

// Addr returns the listen address once Ready is closed.
func (p *Pipe) Addr() net.Addr {
	a, _ := p.addr.Load().(net.Addr)
	return a
}

// Listen discovers the pagelets if that did not happen yet, binds addr and
// serves until ctx is done. Nothing is bound when discovery fails.
func (p *Pipe) Listen(ctx context.Context, addr string) error {
	if p.state.Load() == nil {
		if err := p.Discover(ctx); err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return p.Serve(ctx, ln, nil)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully: pages still streaming get ShutdownTimeout to finish. h wraps the pipe, for example in a router that also serves
// metrics; a nil h serves the pipe alone.
func (p *Pipe) Serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	if h == nil {
		h = p
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: p.cfg.ReadHeaderTimeout,
	}

	if p.cfg.Realtime != nil {
		go p.cfg.Realtime.Run(ctx, p.cfg.SweepInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	p.addr.Store(ln.Addr())
	p.readyOnce.Do(func() { close(p.ready) })
	p.logger.Info("listening", "address", ln.Addr().String(), "layers", p.chain.Names())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-ctx.Done():
		p.logger.Info("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), p.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			p.logger.Error("shutdown error", "error", err)
			return err
		}
		p.logger.Info("server shutdown complete")
		return nil
	}
}
