package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/bigpipe/internal/errors"
)

const (
	// DefaultAddress is the default listen address.
	DefaultAddress = ":8080"

	// DefaultStaticPrefix is the URL prefix compiled assets are served under.
	DefaultStaticPrefix = "/dist/"

	// DefaultStaticDir is the default compiled asset directory.
	DefaultStaticDir = "dist"

	// DefaultViewsDir is the default template directory.
	DefaultViewsDir = "views"

	// DefaultPoolSize is the number of idle instances kept per pagelet.
	DefaultPoolSize = 20

	// DefaultRealtimePath is the websocket endpoint.
	DefaultRealtimePath = "/_bigpipe/realtime"

	// DefaultMetricsPath is the Prometheus scrape endpoint.
	DefaultMetricsPath = "/metrics"
)

// fileNames are probed in order by Load.
var fileNames = []string{"bigpipe.json", "bigpipe.yaml", "bigpipe.yml"}

// Config represents the complete project configuration.
type Config struct {
	// Name is the project name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Address is the listen address.
	Address string `json:"address,omitempty" yaml:"address,omitempty"`

	// Cache enables the method@path resolution cache.
	Cache *bool `json:"cache,omitempty" yaml:"cache,omitempty"`

	// ShutdownTimeout bounds graceful shutdown (e.g., "10s").
	ShutdownTimeout string `json:"shutdownTimeout,omitempty" yaml:"shutdown_timeout,omitempty"`

	// PoolSize is the free-list capacity per pagelet.
	PoolSize int `json:"poolSize,omitempty" yaml:"pool_size,omitempty"`

	Views    ViewsConfig    `json:"views,omitempty" yaml:"views,omitempty"`
	Static   StaticConfig   `json:"static,omitempty" yaml:"static,omitempty"`
	Realtime RealtimeConfig `json:"realtime,omitempty" yaml:"realtime,omitempty"`
	Metrics  MetricsConfig  `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing  TracingConfig  `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Log      LogConfig      `json:"log,omitempty" yaml:"log,omitempty"`

	// Options are handed to plugins, keyed by option name.
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ViewsConfig configures the template collaborator.
type ViewsConfig struct {
	// Dir is the directory views are compiled from.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// StaticConfig configures compiled asset serving.
type StaticConfig struct {
	// Dir is the directory containing compiled assets.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// Prefix is the URL prefix for compiled assets.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`

	// Manifest is an optional fingerprint manifest (source -> hashed name).
	Manifest string `json:"manifest,omitempty" yaml:"manifest,omitempty"`

	// S3 serves assets from a bucket instead of Dir when Bucket is set.
	S3 S3Config `json:"s3,omitempty" yaml:"s3,omitempty"`
}

// S3Config points compiled asset serving at an S3 bucket.
type S3Config struct {
	Bucket   string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region   string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// RealtimeConfig configures the websocket channel used for out-of-band updates.
type RealtimeConfig struct {
	Enabled bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

// TracingConfig configures OpenTelemetry spans.
type TracingConfig struct {
	Enabled    bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	TracerName string `json:"tracerName,omitempty" yaml:"tracer_name,omitempty"`
}

// LogConfig configures the slog handler used by the CLI.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	cache := true
	return &Config{
		Address:         DefaultAddress,
		Cache:           &cache,
		ShutdownTimeout: "10s",
		PoolSize:        DefaultPoolSize,
		Views:           ViewsConfig{Dir: DefaultViewsDir},
		Static: StaticConfig{
			Dir:    DefaultStaticDir,
			Prefix: DefaultStaticPrefix,
		},
		Realtime: RealtimeConfig{Path: DefaultRealtimePath},
		Metrics:  MetricsConfig{Path: DefaultMetricsPath, Namespace: "bigpipe"},
		Tracing:  TracingConfig{TracerName: "bigpipe"},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from the specified directory.
// It probes bigpipe.json, bigpipe.yaml and bigpipe.yml in that order.
func Load(dir string) (*Config, error) {
	for _, name := range fileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("B141").
		WithDetail("No bigpipe.json or bigpipe.yaml found in " + dir).
		WithSuggestion("Create bigpipe.json or pass --config")
}

// LoadFromWorkingDir loads configuration from the current directory,
// falling back to defaults when no file exists.
func LoadFromWorkingDir() (*Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, errors.New("B140").Wrap(err)
	}
	cfg, err := Load(dir)
	if errors.HasCode(err, "B141") {
		return New(), nil
	}
	return cfg, err
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("B141").WithDetail(path)
		}
		return nil, errors.New("B140").Wrap(err)
	}

	cfg := New()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.New("B140").
				WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
				WithSuggestion("Check that the file is valid JSON")
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.New("B140").
				WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
				WithSuggestion("Check that the file is valid YAML")
		}
	default:
		return nil, errors.New("B142").WithDetail(path)
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// applyDefaults fills zero values a file may have cleared.
func (c *Config) applyDefaults() {
	defaults := New()
	if c.Address == "" {
		c.Address = defaults.Address
	}
	if c.Cache == nil {
		c.Cache = defaults.Cache
	}
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if c.PoolSize <= 0 {
		c.PoolSize = defaults.PoolSize
	}
	if c.Views.Dir == "" {
		c.Views.Dir = defaults.Views.Dir
	}
	if c.Static.Dir == "" {
		c.Static.Dir = defaults.Static.Dir
	}
	if c.Static.Prefix == "" {
		c.Static.Prefix = defaults.Static.Prefix
	}
	if !strings.HasSuffix(c.Static.Prefix, "/") {
		c.Static.Prefix += "/"
	}
	if c.Realtime.Path == "" {
		c.Realtime.Path = defaults.Realtime.Path
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = defaults.Metrics.Path
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = defaults.Metrics.Namespace
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = defaults.Tracing.TracerName
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
}

// CacheEnabled reports whether the resolution cache is on.
func (c *Config) CacheEnabled() bool {
	return c.Cache == nil || *c.Cache
}

// Shutdown returns the parsed shutdown timeout, defaulting to 10s.
func (c *Config) Shutdown() time.Duration {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
// Relative paths in the config are resolved against it.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return "."
	}
	return filepath.Dir(c.configPath)
}

// Resolve returns p relative to the config directory unless p is absolute.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir(), p)
}
