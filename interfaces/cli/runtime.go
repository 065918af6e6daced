package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/felixgeelhaar/opsquery/application"
	domainconfig "github.com/felixgeelhaar/opsquery/domain/config"
	"github.com/felixgeelhaar/opsquery/domain/pack"
	"github.com/felixgeelhaar/opsquery/domain/tool"
	infraconfig "github.com/felixgeelhaar/opsquery/infrastructure/config"
	"github.com/felixgeelhaar/opsquery/infrastructure/gateway"
	"github.com/felixgeelhaar/opsquery/infrastructure/logging"
	"github.com/felixgeelhaar/opsquery/infrastructure/observability"
	"github.com/felixgeelhaar/opsquery/infrastructure/resilience"
	"github.com/felixgeelhaar/opsquery/infrastructure/storage/memory"
	"github.com/felixgeelhaar/opsquery/pack/identity"
	"github.com/felixgeelhaar/opsquery/pack/timewindow"
)

// runtime holds the components assembled from one configuration.
type runtime struct {
	config        *domainconfig.Config
	settings      *infraconfig.BuildResult
	registry      *memory.ToolRegistry
	orchestrator  *application.Orchestrator
	observability *observability.Provider
}

// runtimeOptions adjust how a runtime is assembled.
type runtimeOptions struct {
	// gateway replaces the configured provider.
	gateway gateway.Gateway
	// maxIterations overrides agent.max_iterations when positive.
	maxIterations int
}

// packs returns the tool packs opsquery ships with.
func packs() []*pack.Pack {
	return []*pack.Pack{timewindow.New(), identity.New()}
}

// loadConfig loads the file named by --config, or the defaults when none
// is given, and applies --log-level.
func (a *App) loadConfig() (*domainconfig.Config, error) {
	cfg, err := infraconfig.NewLoader().LoadFile(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	return cfg, nil
}

// setupLogging installs a logger writing to the app's stderr. The returned
// function restores the previous logger.
func (a *App) setupLogging(cfg *domainconfig.Config) func() {
	return logging.Replace(logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: a.stderr,
	}))
}

func buildRegistry(disabled map[string]bool) (*memory.ToolRegistry, error) {
	tools, err := pack.Tools(packs()...)
	if err != nil {
		return nil, err
	}
	enabled := make([]tool.Tool, 0, len(tools))
	for _, t := range tools {
		if !disabled[t.Name()] {
			enabled = append(enabled, t)
		}
	}
	return memory.NewToolRegistry(enabled...)
}

func buildRuntime(cfg *domainconfig.Config, opts runtimeOptions) (*runtime, error) {
	settings, err := infraconfig.NewBuilder(cfg).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build configuration: %w", err)
	}

	registry, err := buildRegistry(settings.DisabledTools)
	if err != nil {
		return nil, fmt.Errorf("failed to build tool registry: %w", err)
	}

	gw := opts.gateway
	if gw == nil {
		gw, err = gateway.New(settings.Gateway)
		if err != nil {
			return nil, fmt.Errorf("failed to create gateway: %w", err)
		}
	}

	obsOpts := append(observability.FromSettings(cfg.Observability), observability.WithServiceVersion(Version))
	provider, err := observability.New(obsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to set up observability: %w", err)
	}

	loop := settings.Loop
	if opts.maxIterations > 0 {
		loop.MaxIterations = opts.maxIterations
	}

	orchestrator, err := application.NewOrchestratorWithOptions(
		application.WithGateway(gw),
		application.WithRegistry(registry),
		application.WithExecutor(resilience.NewExecutor(settings.Executor)),
		application.WithGatewayGuard(settings.Guard),
		application.WithLoopPolicy(loop),
		application.WithFields(settings.Fields),
		application.WithLocation(settings.Location),
		application.WithSampling(settings.Temperature, cfg.Gateway.MaxTokens),
		application.WithTracer(provider.Tracer()),
		application.WithRecorder(provider.Recorder()),
	)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	return &runtime{
		config:        cfg,
		settings:      settings,
		registry:      registry,
		orchestrator:  orchestrator,
		observability: provider,
	}, nil
}

// close flushes and stops the observability exporters.
func (r *runtime) close(ctx context.Context) {
	if err := r.observability.Shutdown(ctx); err != nil {
		logging.Warn().
			Add(logging.Component("cli")).
			Add(logging.ErrorField(err)).
			Msg("observability shutdown")
	}
}

// dryRunGateway answers without a model: the query is accepted, handed to
// extract_time_window once and summarized with a fixed text.
func dryRunGateway(query string) *gateway.ScriptedGateway {
	args, _ := json.Marshal(map[string]string{"expression": query})
	return gateway.NewScriptedGateway().
		Always(gateway.PurposeClassify, gateway.Structured(map[string]any{
			"in_scope":  true,
			"rationale": "dry run",
		})).
		On(gateway.PurposeAct, gateway.Call("dry_run_1", "extract_time_window", string(args))).
		Always(gateway.PurposeAct, gateway.Text("Dry run complete.")).
		Always(gateway.PurposeReflect, gateway.Structured(map[string]any{
			"sufficient": true,
			"assessment": "dry run",
		})).
		Always(gateway.PurposeFinalize, gateway.Structured(map[string]any{
			"summary": "Dry run: the query was resolved with local tools only and no model was called.",
		}))
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
