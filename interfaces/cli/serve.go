package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	domainconfig "github.com/felixgeelhaar/opsquery/domain/config"
	api "github.com/felixgeelhaar/opsquery/interfaces/api"
	"github.com/felixgeelhaar/opsquery/infrastructure/logging"
)

// serveOptions holds options for the serve command.
type serveOptions struct {
	addr string
}

func (a *App) newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API over HTTP",
		Long: `Start the HTTP service.

Endpoints:
  GET  /health             liveness
  POST /api/query          resolve a query, returns the final result
  POST /api/query/stream   resolve a query, streams turns as Server-Sent Events
  GET  /api/tools          registered tools
  GET  /metrics            Prometheus metrics (observability.metrics_enabled)

Examples:
  opsquery serve -c opsquery.yaml
  opsquery serve --addr :9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (overrides config)")

	return cmd
}

func (a *App) serve(ctx context.Context, opts *serveOptions) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	restore := a.setupLogging(cfg)
	defer restore()

	rt, err := buildRuntime(cfg, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	server, err := api.NewServer(rt.orchestrator, serverConfig(cfg.Server, rt))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logging.Info().
		Add(logging.Component("cli")).
		Add(logging.Provider(rt.settings.Gateway.Provider)).
		Add(logging.Int("tools", rt.registry.Len())).
		Msg("opsquery starting")

	return server.ListenAndServe(ctx)
}

func serverConfig(s domainconfig.ServerConfig, rt *runtime) api.Config {
	cfg := api.Config{
		Addr:            s.Addr,
		RequestTimeout:  s.RequestTimeout.Duration(),
		ShutdownTimeout: s.ShutdownTimeout.Duration(),
		AllowedOrigins:  s.AllowedOrigins,
		MaxQueryLength:  s.MaxQueryLength,
		Metrics:         rt.observability.MetricsHandler(),
		Registry:        rt.registry,
		Version:         Version,
	}
	if s.RateLimit.Enabled {
		cfg.RateLimit = api.RateLimitConfig{Rate: s.RateLimit.Rate, Burst: s.RateLimit.Burst}
	}
	return cfg
}
