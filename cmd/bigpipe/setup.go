package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vango-dev/bigpipe"
	"github.com/vango-dev/bigpipe/internal/config"
	"github.com/vango-dev/bigpipe/pkg/assets"
	"github.com/vango-dev/bigpipe/pkg/middleware"
	"github.com/vango-dev/bigpipe/pkg/realtime"
)

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadFromWorkingDir()
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newAssetSource serves compiled assets from S3 when a bucket is configured
// and from the static directory otherwise.
func newAssetSource(cfg *config.Config) assets.Source {
	s3cfg := cfg.Static.S3
	if s3cfg.Bucket == "" {
		return assets.NewFSSource(os.DirFS(cfg.Resolve(cfg.Static.Dir)))
	}

	opts := s3.Options{
		Region:      s3cfg.Region,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(envCredentials)),
	}
	if s3cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(s3cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return assets.NewS3Source(s3.New(opts), s3cfg.Bucket, s3cfg.Prefix)
}

func envCredentials(ctx context.Context) (aws.Credentials, error) {
	id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.Credentials{}, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
	}
	return aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "environment",
	}, nil
}

func loadManifest(ctx context.Context, cfg *config.Config, src assets.Source) (*assets.Manifest, error) {
	name := cfg.Static.Manifest
	if name == "" {
		return nil, nil
	}
	if cfg.Static.S3.Bucket != "" {
		return assets.LoadFrom(ctx, src, name)
	}
	return assets.Load(cfg.Resolve(name))
}

// app is everything serve needs next to the pipe.
type app struct {
	pipe     *bigpipe.Pipe
	registry *prometheus.Registry
	hub      *realtime.Hub
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	src := newAssetSource(cfg)
	manifest, err := loadManifest(ctx, cfg, src)
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}

	pc := bigpipe.DefaultConfig()
	pc.Pagelets = demoPagelets()
	pc.Assets = src
	pc.Manifest = manifest
	pc.Static = middleware.StaticConfig{Prefix: cfg.Static.Prefix, CacheControl: middleware.CacheControlProduction}
	pc.DisableCache = !cfg.CacheEnabled()
	pc.PoolSize = cfg.PoolSize
	pc.Title = cfg.Name
	pc.Options = cfg.Options
	pc.Logger = logger
	pc.ShutdownTimeout = cfg.Shutdown()
	pc.Tracing = cfg.Tracing.Enabled
	pc.TracerName = cfg.Tracing.TracerName

	if dir := cfg.Resolve(cfg.Views.Dir); dir != "" {
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			pc.Views = os.DirFS(dir)
		}
	}

	a := &app{}
	if cfg.Realtime.Enabled {
		a.hub = realtime.NewHub(realtime.WithHubLogger(logger.With("component", "realtime")))
		pc.Realtime = a.hub
		pc.RealtimePath = cfg.Realtime.Path
	}
	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		pc.Metrics = middleware.NewMetrics(
			middleware.WithNamespace(cfg.Metrics.Namespace),
			middleware.WithRegistry(a.registry),
		)
	}

	a.pipe, err = bigpipe.New(pc)
	if err != nil {
		return nil, err
	}
	if err := a.pipe.Discover(ctx); err != nil {
		return nil, err
	}
	return a, nil
}
