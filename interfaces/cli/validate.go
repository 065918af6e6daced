package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	infraconfig "github.com/felixgeelhaar/opsquery/infrastructure/config"
)

// validateOptions holds options for the validate command.
type validateOptions struct {
	strict     bool
	showSchema bool
	schemaPath string
}

func (a *App) newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate an opsquery configuration file.

This command checks:
  - File format (YAML or JSON)
  - Field types and bounds
  - Timezone and metadata field names
  - Environment variable references (in strict mode)

Examples:
  # Validate a configuration file
  opsquery validate -c opsquery.yaml

  # Strict validation (fail on missing env vars)
  opsquery validate -c opsquery.yaml --strict

  # Show the JSON schema for configuration, or write it for an editor
  opsquery validate --schema
  opsquery validate --schema -o opsquery.schema.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showSchema {
				return a.showConfigSchema(opts.schemaPath)
			}
			return a.validateConfig(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail on unset environment variables")
	cmd.Flags().BoolVar(&opts.showSchema, "schema", false, "Show JSON schema for configuration")
	cmd.Flags().StringVarP(&opts.schemaPath, "output", "o", "", "Write the schema to a file instead of stdout")

	return cmd
}

func (a *App) validateConfig(opts *validateOptions) error {
	if a.configPath == "" {
		return errors.New("configuration file path is required (-c flag)")
	}

	loader := infraconfig.NewLoader(infraconfig.WithStrictEnv(opts.strict))
	cfg, err := loader.LoadFile(a.configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	result, err := infraconfig.NewBuilder(cfg).Build()
	if err != nil {
		return fmt.Errorf("configuration build failed: %w", err)
	}
	if _, err := buildRegistry(result.DisabledTools); err != nil {
		return fmt.Errorf("tool registry: %w", err)
	}

	fmt.Fprintf(a.stdout, "✓ Configuration is valid\n")
	fmt.Fprintf(a.stdout, "\nConfiguration summary:\n")
	fmt.Fprintf(a.stdout, "  Provider: %s (%s)\n", result.Gateway.Provider, result.Gateway.Model)
	fmt.Fprintf(a.stdout, "  Max iterations: %d\n", result.Loop.MaxIterations)
	fmt.Fprintf(a.stdout, "  Invalid calls per tool: %d\n", result.Loop.MaxInvalidCallsPerTool)
	fmt.Fprintf(a.stdout, "  Timezone: %s\n", result.Location)
	fmt.Fprintf(a.stdout, "  Metadata fields: %s\n", strings.Join(result.Fields.Names(), ", "))
	fmt.Fprintf(a.stdout, "  Gateway timeout: %s\n", result.Guard.Timeout)
	fmt.Fprintf(a.stdout, "  Tool timeout: %s\n", result.Executor.DefaultTimeout)

	if len(cfg.Tools.Disabled) > 0 {
		fmt.Fprintf(a.stdout, "  Disabled tools: %s\n", strings.Join(cfg.Tools.Disabled, ", "))
	}
	if cfg.Server.RateLimit.Enabled {
		fmt.Fprintf(a.stdout, "  Rate limiting: enabled (rate=%d, burst=%d)\n",
			cfg.Server.RateLimit.Rate, cfg.Server.RateLimit.Burst)
	}
	if cfg.Observability.TracingEnabled || cfg.Observability.MetricsEnabled {
		fmt.Fprintf(a.stdout, "  Observability: tracing=%t metrics=%t\n",
			cfg.Observability.TracingEnabled, cfg.Observability.MetricsEnabled)
	}

	return nil
}

func (a *App) showConfigSchema(path string) error {
	schemaJSON, err := infraconfig.SchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	if path == "" {
		fmt.Fprintln(a.stdout, schemaJSON)
		return nil
	}
	if err := os.WriteFile(path, []byte(schemaJSON+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write schema file: %w", err)
	}
	fmt.Fprintf(a.stdout, "Schema written to %s\n", path)
	return nil
}
