// Package main provides the CLI entry point for tidygen.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configFile string // Project config, from --config
	osOverride string
	stageName  string
	verbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "tidygen",
		Version: version,
		Short:   "Generate files from directive templates",
		Long: `tidygen renders a tree of templates against a set of variables and writes
the results into an output tree.

Configuration is stored in two places:
  ~/.config/tidygen/config.yaml  - Defaults shared by every project
  <project>/tidygen.yaml         - Template and output roots, stages, policies

Run 'tidygen init' to create a starter project.`,
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "tidygen.yaml", "Project configuration file")
	rootCmd.PersistentFlags().StringVar(&osOverride, "os", "", "Override OS detection (linux, windows or darwin)")
	rootCmd.PersistentFlags().StringVarP(&stageName, "stage", "s", "", "Only use the named stage")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(
		newGenerateCmd(),
		newCheckCmd(),
		newListCmd(),
		newHelpersCmd(),
		newHistoryCmd(),
		newCleanupCmd(),
		newInitCmd(),
	)

	return rootCmd
}

// runWithCancellation runs a context-aware function with signal-based cancellation.
// It sets up SIGINT/SIGTERM handling and cancels the context when a signal is received.
func runWithCancellation(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nOperation canceled by user")
			cancel()
		case <-ctx.Done():
		}
	}()

	return fn(ctx)
}
