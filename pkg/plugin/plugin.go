package plugin

import (
	"log/slog"
	"sync"

	bperrors "github.com/vango-dev/bigpipe/internal/errors"
	"github.com/vango-dev/bigpipe/pkg/middleware"
	"github.com/vango-dev/bigpipe/pkg/pipe"
)

// App is what a server hook can extend.
type App interface {
	// Use appends a middleware layer after the built-in ones.
	Use(name string, l middleware.Layer) error

	// Hooks returns the page lifecycle hooks.
	Hooks() *pipe.Hooks

	// Options returns the global options.
	Options() *Options
}

// Plugin extends a pipe.
type Plugin struct {
	// Server runs once, synchronously, when the plugin is registered.
	Server func(app App, opts *Options) error

	// Client is the URL of a script loaded by every page.
	Client string

	// Library lists assets added to every page's dependencies.
	Library []string

	// Options are merged into the global options.
	Options map[string]any
}

// Libraries receives the assets plugins contribute. *assets.Catalog
// implements it.
type Libraries interface {
	AddLibrary(src string)
}

// Host keeps the registered plugins of one pipe.
type Host struct {
	mu      sync.RWMutex
	app     App
	libs    Libraries
	plugins map[string]Plugin
	order   []string
	logger  *slog.Logger
}

// NewHost returns a host registering plugins against app. libs may be nil.
func NewHost(app App, libs Libraries, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default().With("component", "plugin")
	}
	return &Host{
		app:     app,
		libs:    libs,
		plugins: make(map[string]Plugin),
		logger:  logger,
	}
}

// Register validates p, records it under name and runs its server hook. All
// validation happens before anything is changed, so a rejected plugin
// leaves the host as it was.
func (h *Host) Register(name string, p Plugin) error {
	if name == "" {
		return bperrors.New("B120")
	}
	if p.Server == nil && p.Client == "" {
		return bperrors.New("B121").WithDetailf("Plugin %q declares neither Server nor Client.", name)
	}

	h.mu.Lock()
	if _, ok := h.plugins[name]; ok {
		h.mu.Unlock()
		return bperrors.New("B122").WithDetailf("A plugin named %q is already registered.", name)
	}
	h.plugins[name] = p
	h.order = append(h.order, name)
	h.mu.Unlock()

	h.app.Options().Merge(p.Options)
	if h.libs != nil {
		for _, src := range p.Library {
			h.libs.AddLibrary(src)
		}
	}
	h.logger.Debug("plugin registered", "plugin", name, "server", p.Server != nil, "client", p.Client)

	if p.Server != nil {
		if err := p.Server(h.app, h.app.Options()); err != nil {
			return bperrors.New("B123").WithDetailf("Plugin %q failed to start.", name).Wrap(err)
		}
	}
	return nil
}

// Plugin returns the plugin registered under name.
func (h *Host) Plugin(name string) (Plugin, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.plugins[name]
	return p, ok
}

// Names returns the plugin names in registration order.
func (h *Host) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.order...)
}

// Scripts returns the client scripts in registration order.
func (h *Host) Scripts() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var scripts []string
	for _, name := range h.order {
		if src := h.plugins[name].Client; src != "" {
			scripts = append(scripts, src)
		}
	}
	return scripts
}
