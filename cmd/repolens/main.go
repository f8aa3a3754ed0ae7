package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	// Register invokers via init() side effects.
	_ "github.com/julianshen/repolens/internal/provider/gemini"
	_ "github.com/julianshen/repolens/internal/provider/openai"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	configPath string
	verbose    bool
	localDir   string
)

func versionString() string {
	return fmt.Sprintf("repolens %s (commit: %s, built: %s)", version, commit, date)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "repolens",
		Short: "Explain a repository and draw its architecture",
		Long: `repolens reads a GitHub or GitLab repository (or a local checkout),
explains it with an LLM and renders its architecture as a Mermaid diagram.
When the inference service is unavailable, diagrams fall back to the
directory structure.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.config/repolens/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&localDir, "local", "", "analyze a local directory instead of a hosted repository")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versionString())
		},
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(explainCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(diagramCmd())
	rootCmd.AddCommand(cacheCmd())
	return rootCmd
}
