package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vango-dev/bigpipe/internal/config"
)

func serveCmd(configPath *string) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pagelet server",
		Long: `Start the pagelet server.

Compiled assets are served from static.dir, or from static.s3.bucket when
one is configured. Prometheus metrics and the realtime endpoint are mounted
when enabled in the configuration.

Examples:
  bigpipe serve
  bigpipe serve --address=:3000
  bigpipe serve --config=deploy/bigpipe.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Address = address
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "Listen address (default from config)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(os.Stderr, cfg.Log)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if a.registry != nil {
		r.Method(http.MethodGet, cfg.Metrics.Path, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	}
	r.Handle("/*", a.pipe)

	ln, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return err
	}
	success("Serving %d pagelets on %s", len(a.pipe.Snapshot().Definitions()), ln.Addr())
	if a.registry != nil {
		info("metrics at %s", cfg.Metrics.Path)
	}

	return a.pipe.Serve(ctx, ln, r)
}
