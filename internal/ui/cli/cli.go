// Package cli wires the pyscan commands together.
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pyscan/internal/shared/version"
)

// Exit codes returned by Run.
const (
	ExitOK        = 0
	ExitError     = 1
	ExitDefects   = 2
	ExitCancelled = 130
)

// errDefectsFound is returned by analyze when --fail-on matched.
var errDefectsFound = stderrors.New("defects at or above the --fail-on severity were found")

type globalOptions struct {
	configPath string
	verbose    bool
}

// Run executes the command line and returns the process exit code.
func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Execute(ctx, args, os.Stdout, os.Stderr)
}

// Execute runs the root command with explicit streams.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return ExitOK
	case stderrors.Is(err, errDefectsFound):
		fmt.Fprintln(stderr, err)
		return ExitDefects
	case ctx.Err() != nil:
		fmt.Fprintln(stderr, "interrupted")
		return ExitCancelled
	default:
		fmt.Fprintln(stderr, "error:", err)
		return ExitError
	}
}

func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	var g globalOptions
	root := &cobra.Command{
		Use:           "pyscan",
		Short:         "Static defect detection for Python sources",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to a TOML or YAML config file (default: discover pyscan.toml)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newAnalyzeCommand(&g),
		newPatternsCommand(&g),
		newWatchCommand(&g),
		newHistoryCommand(&g),
	)
	return root
}
