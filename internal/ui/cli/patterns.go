package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pyscan/internal/engine/patterns"
)

type patternsOptions struct {
	category string
	asJSON   bool
	list     bool
}

func newPatternsCommand(_ *globalOptions) *cobra.Command {
	var opts patternsOptions
	cmd := &cobra.Command{
		Use:     "patterns [id]",
		Aliases: []string{"rules"},
		Short:   "List registered defect patterns or describe one",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := patterns.DefaultRegistry()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 1 && opts.list {
				return fmt.Errorf("give either a pattern id or --list")
			}
			if len(args) == 1 {
				return describePattern(out, registry, args[0], opts.asJSON)
			}
			return listPatterns(out, registry, opts)
		},
	}
	cmd.Flags().StringVar(&opts.category, "category", "", "Only list patterns of this category (basic, security, performance)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print JSON instead of a table")
	cmd.Flags().BoolVar(&opts.list, "list", false, "List every pattern (the default without an id)")
	return cmd
}

func listPatterns(out io.Writer, registry *patterns.Registry, opts patternsOptions) error {
	var infos []patterns.Info
	if opts.category != "" {
		infos = registry.List(patterns.Category(opts.category))
		if len(infos) == 0 {
			return fmt.Errorf("no patterns in category %q", opts.category)
		}
	} else {
		infos = registry.List()
	}

	if opts.asJSON {
		return writeJSON(out, infos)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSEVERITY\tCATEGORY\tDESCRIPTION")
	for _, info := range infos {
		id := info.ID
		if info.Symbolic {
			id += " (symbolic)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, info.Severity, info.Category, info.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	st := registry.Statistics()
	_, err := fmt.Fprintf(out, "\n%d patterns, %d need symbolic execution\n", st.Total, st.Symbolic)
	return err
}

func describePattern(out io.Writer, registry *patterns.Registry, id string, asJSON bool) error {
	info, err := registry.Info(id)
	if err != nil {
		return fmt.Errorf("pattern %q: %w", id, err)
	}
	fixes := patterns.SuggestFixes(id)
	if asJSON {
		return writeJSON(out, struct {
			patterns.Info
			Fixes []string `json:"fixes,omitempty"`
		}{info, fixes})
	}

	fmt.Fprintf(out, "%s\n  severity:  %s\n  category:  %s\n  %s\n", info.ID, info.Severity, info.Category, info.Description)
	if info.ThresholdKey != "" {
		fmt.Fprintf(out, "  threshold: patterns.thresholds.%s\n", info.ThresholdKey)
	}
	if info.Symbolic {
		fmt.Fprintln(out, "  requires symbolic_execution.enabled = true")
	}
	for _, fix := range fixes {
		fmt.Fprintf(out, "  - %s\n", fix)
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
