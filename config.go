package bigpipe

import (
	"io/fs"
	"log/slog"
	"time"

	"github.com/vango-dev/bigpipe/pkg/assets"
	"github.com/vango-dev/bigpipe/pkg/middleware"
	"github.com/vango-dev/bigpipe/pkg/pagelet"
	"github.com/vango-dev/bigpipe/pkg/plugin"
	"github.com/vango-dev/bigpipe/pkg/realtime"
	"github.com/vango-dev/bigpipe/pkg/registry"
)

// Config configures a Pipe.
type Config struct {
	// Pagelets are discovered when the pipe starts listening, or when
	// Discover is called.
	Pagelets []pagelet.Module

	// Views is the file system views are compiled from. Pagelets whose
	// producers render their own markup need no views.
	Views fs.FS

	// Assets serves compiled assets under Static.Prefix. Nil disables the
	// compiler layer's serving; requests fall through to the router.
	Assets assets.Source

	// Static configures compiled asset serving.
	Static middleware.StaticConfig

	// Manifest maps source assets to fingerprinted names. When nil, asset
	// references are only prefixed.
	Manifest *assets.Manifest

	// Libraries are scripts every page loads before its own.
	Libraries []string

	// DisableCache turns off the method@path resolution cache.
	DisableCache bool

	// PoolSize is the number of idle instances kept per pagelet.
	// Default: pagelet.DefaultPoolSize.
	PoolSize int

	// Title is the document title of every page.
	Title string

	// PoweredBy is sent as X-Powered-By. Default: "bigpipe".
	PoweredBy string

	// Options are shared with plugins.
	Options map[string]any

	// Plugins are registered in order by New.
	Plugins []NamedPlugin

	// Before and After run around the normalization of each pagelet.
	Before []registry.BeforeHook
	After  []registry.AfterHook

	// Realtime, when set, is mounted at RealtimePath and gives every page a
	// channel id in its bootstrap state.
	Realtime     *realtime.Hub
	RealtimePath string

	// Metrics, when set, is added as a layer and receives routing and
	// rendering events.
	Metrics *middleware.Metrics

	// Tracing adds an OpenTelemetry layer.
	Tracing    bool
	TracerName string

	// Logger is the structured logger for the pipe.
	// If nil, slog.Default() is used.
	Logger *slog.Logger

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration

	// SweepInterval is how often unconnected realtime channels are expired.
	SweepInterval time.Duration
}

// NamedPlugin is a plugin with the name it registers under.
type NamedPlugin struct {
	Name   string
	Plugin plugin.Plugin
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Static:            middleware.StaticConfig{Prefix: middleware.DefaultStaticPrefix},
		PoolSize:          pagelet.DefaultPoolSize,
		PoweredBy:         "bigpipe",
		RealtimePath:      realtime.DefaultPath,
		TracerName:        "bigpipe",
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		SweepInterval:     30 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Static.Prefix == "" {
		c.Static.Prefix = defaults.Static.Prefix
	}
	if c.PoolSize <= 0 {
		c.PoolSize = defaults.PoolSize
	}
	if c.PoweredBy == "" {
		c.PoweredBy = defaults.PoweredBy
	}
	if c.RealtimePath == "" {
		c.RealtimePath = defaults.RealtimePath
	}
	if c.TracerName == "" {
		c.TracerName = defaults.TracerName
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaults.SweepInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
