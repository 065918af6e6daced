package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// toolsOptions holds options for the tools command.
type toolsOptions struct {
	jsonOutput bool
	verbose    bool
}

type toolListing struct {
	Name           string   `json:"name"`
	Pack           string   `json:"pack"`
	Description    string   `json:"description"`
	MetadataFields []string `json:"metadata_fields,omitempty"`
	Disabled       bool     `json:"disabled,omitempty"`
}

func (a *App) newToolsCmd() *cobra.Command {
	opts := &toolsOptions{}

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the available tools",
		Long: `List every tool opsquery ships with, grouped by pack. Tools named in
tools.disabled are marked and left out of the registry.

Examples:
  opsquery tools
  opsquery tools -c opsquery.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listTools(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Show input fields")

	return cmd
}

func (a *App) listTools(opts *toolsOptions) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	disabled := make(map[string]bool, len(cfg.Tools.Disabled))
	for _, name := range cfg.Tools.Disabled {
		disabled[name] = true
	}

	if opts.jsonOutput {
		var out []toolListing
		for _, p := range packs() {
			for _, t := range p.Tools {
				out = append(out, toolListing{
					Name:           t.Name(),
					Pack:           p.Name,
					Description:    t.Description(),
					MetadataFields: t.MetadataFields(),
					Disabled:       disabled[t.Name()],
				})
			}
		}
		return writeIndentedJSON(a.stdout, out)
	}

	for _, p := range packs() {
		_, _ = fmt.Fprintf(a.stdout, "%s (v%s): %s\n", p.Name, p.Version, p.Description)
		for _, t := range p.Tools {
			marker := ""
			if disabled[t.Name()] {
				marker = " [disabled]"
			}
			_, _ = fmt.Fprintf(a.stdout, "  %s%s\n    %s\n", t.Name(), marker, t.Description())
			if fields := t.MetadataFields(); len(fields) > 0 {
				_, _ = fmt.Fprintf(a.stdout, "    Metadata: %s\n", strings.Join(fields, ", "))
			}
			if opts.verbose {
				for _, f := range t.InputSchema().Fields() {
					req := ""
					if f.Required {
						req = ", required"
					}
					_, _ = fmt.Fprintf(a.stdout, "    - %s (%s%s)\n", f.Name, f.Type, req)
				}
			}
		}
		_, _ = fmt.Fprintln(a.stdout)
	}
	return nil
}
