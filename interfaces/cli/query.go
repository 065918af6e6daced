package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/opsquery/application"
	"github.com/felixgeelhaar/opsquery/domain/agent"
)

// queryOptions holds options for the query command.
type queryOptions struct {
	maxIterations int
	timeout       time.Duration
	jsonOutput    bool
	dryRun        bool
	verbose       bool
}

func (a *App) newQueryCmd() *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query [query]",
		Short: "Resolve a single query",
		Long: `Resolve one query and print the summary and extracted metadata.

The query is read from the argument or, if absent, from stdin.

Examples:
  # Resolve a query with the configured provider
  opsquery query -c opsquery.yaml "cpu usage of alice's jobs since yesterday"

  # Resolve offline, without calling a model
  opsquery query --dry-run "the last 2 hours"

  # JSON output with a tighter loop
  opsquery query --json --max-iterations 3 "pods in namespace ml-train"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readQuery(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return a.runQuery(cmd.Context(), query, opts)
		},
	}

	cmd.Flags().IntVar(&opts.maxIterations, "max-iterations", 0, "Loop passes before forced completion (overrides config)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Bound on the whole run")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output the result as JSON")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Use local tools only, without a model")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print each transcript turn as it happens")

	return cmd
}

func readQuery(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	data, err := io.ReadAll(io.LimitReader(stdin, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read query from stdin: %w", err)
	}
	return string(data), nil
}

func (a *App) runQuery(ctx context.Context, query string, opts *queryOptions) error {
	if strings.TrimSpace(query) == "" {
		return errors.New("no query given (pass it as an argument or on stdin)")
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	restore := a.setupLogging(cfg)
	defer restore()

	rtOpts := runtimeOptions{maxIterations: opts.maxIterations}
	if opts.dryRun {
		rtOpts.gateway = dryRunGateway(query)
	}
	rt, err := buildRuntime(cfg, rtOpts)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	var runOpts []application.RunOption
	if opts.verbose && !opts.jsonOutput {
		runOpts = append(runOpts, application.WithObserver(func(t agent.Turn) {
			_, _ = fmt.Fprintf(a.stderr, "[%d] %s/%s %s\n", t.Seq, t.Node, t.Kind, turnText(t))
		}))
	}

	result, err := rt.orchestrator.Run(ctx, query, runOpts...)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if opts.jsonOutput {
		return writeIndentedJSON(a.stdout, result)
	}
	a.printResult(result)
	return nil
}

func (a *App) printResult(r agent.FinalResult) {
	_, _ = fmt.Fprintf(a.stdout, "%s\n\n", r.Summary)
	_, _ = fmt.Fprintf(a.stdout, "  Run ID: %s\n", r.RunID)
	_, _ = fmt.Fprintf(a.stdout, "  Status: %s\n", r.Status)
	_, _ = fmt.Fprintf(a.stdout, "  Classification: %s\n", r.Classification)
	_, _ = fmt.Fprintf(a.stdout, "  Iterations: %d\n", r.Iterations)
	_, _ = fmt.Fprintf(a.stdout, "  Duration: %s\n", time.Duration(r.DurationMS)*time.Millisecond)

	if len(r.Metadata) > 0 {
		_, _ = fmt.Fprintf(a.stdout, "  Metadata:\n")
		keys := make([]string, 0, len(r.Metadata))
		for k := range r.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = fmt.Fprintf(a.stdout, "    %s: %v\n", k, r.Metadata[k])
		}
	}

	if len(r.Errors) > 0 {
		_, _ = fmt.Fprintf(a.stdout, "  Errors:\n")
		for _, e := range r.Errors {
			_, _ = fmt.Fprintf(a.stdout, "    - %s (%s): %s\n", e.Code, e.Node, e.Message)
		}
	}
}

func turnText(t agent.Turn) string {
	switch {
	case t.ToolCall != nil:
		return fmt.Sprintf("%s %s", t.ToolCall.ToolName, t.ToolCall.Validation)
	case t.Kind == agent.TurnClassification:
		return string(t.Classification)
	default:
		return t.Content
	}
}
