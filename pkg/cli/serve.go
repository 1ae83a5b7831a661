package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mchmarny/docshell/pkg/config"
	"github.com/mchmarny/docshell/pkg/content"
	"github.com/mchmarny/docshell/pkg/logger"
	"github.com/mchmarny/docshell/pkg/server"
	"github.com/mchmarny/docshell/pkg/site"
)

func newServeCommand(o *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the documentation site",
		Long: `Starts the HTTP server: the site shell on every path, live sessions on /ws,
the JSON API under /api, plus /healthz, /readyz and /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			slog.Info("starting docshell", "commit", o.build.Commit, "date", o.build.Date)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApp(ctx, cfg, o.build.Version)
			if err != nil {
				return err
			}
			defer app.site.Close()

			return app.server.Serve(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", server.DefaultPort, "port to listen on; overrides config")
	return cmd
}

// app is the assembled serving stack.
type app struct {
	loader *content.Loader
	site   *site.Site
	server server.Server
}

func newLoader(cfg *config.Config, reg prometheus.Registerer) (*content.Loader, *content.MarkdownSource, error) {
	src, err := content.NewMarkdownSource(cfg.ContentFS(), cfg.Content.Include...)
	if err != nil {
		return nil, nil, fmt.Errorf("creating content source: %w", err)
	}
	loader := content.NewLoader(src,
		content.WithLoadTimeout(cfg.Content.LoadTimeout),
		content.WithRegisterer(reg),
	)
	return loader, src, nil
}

func newApp(ctx context.Context, cfg *config.Config, version string) (*app, error) {
	reg := prometheus.NewRegistry()

	table, err := cfg.Table()
	if err != nil {
		return nil, err
	}
	m := cfg.Menu()
	m.Version = version

	loader, _, err := newLoader(cfg, reg)
	if err != nil {
		return nil, err
	}

	if cfg.Content.Preload {
		start := time.Now()
		if err := loader.Preload(ctx, refs(table.Refs())...); err != nil {
			// a page that fails now is retried when visited
			slog.Warn("preloading content failed", "error", err)
		}
		slog.Info("content preloaded", "cached", loader.Len(), "duration", time.Since(start))
	}

	s, err := site.New(m, table, loader,
		site.WithFallbackDelay(cfg.Content.FallbackDelay),
		site.WithCORSOrigins(cfg.Server.CORSOrigins...),
		site.WithRegisterer(reg),
		site.WithVersion(version),
	)
	if err != nil {
		return nil, err
	}

	srv := server.New(
		server.WithPort(cfg.Server.Port),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		server.WithRateLimit(cfg.Server.RateLimit, time.Minute),
		server.WithErrorLog(logger.NewLogLogger(slog.LevelWarn, false)),
		server.WithRegistry(reg),
		server.WithMetrics(),
		server.WithSimpleHealth(),
		server.WithReadiness(s),
		server.WithHandler("/", s.Handler()),
	)

	return &app{loader: loader, site: s, server: srv}, nil
}

func refs(names []string) []content.Ref {
	out := make([]content.Ref, 0, len(names))
	for _, n := range names {
		out = append(out, content.Ref(n))
	}
	return out
}
