package main

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/julianshen/repolens/internal/analysis"
	"github.com/julianshen/repolens/internal/orchestrator"
	"github.com/julianshen/repolens/internal/output"
	"github.com/julianshen/repolens/internal/repo"
)

func diagramCmd() *cobra.Command {
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "diagram [repo]",
		Short: "Draw the architecture of a repository as a Mermaid diagram",
		Long: `Analyze the source files of a repository, extract its architecture
with an LLM and print it as a Mermaid flowchart. If extraction fails the
diagram is drawn from the directory structure and marked offline.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagram(cmd.Context(), cmd.OutOrStdout(), args, formatFlag)
		},
	}

	cmd.Flags().StringVar(&formatFlag, "format", "mermaid", "output format: mermaid, markdown, json, yaml")
	return cmd
}

func runDiagram(ctx context.Context, w io.Writer, args []string, formatFlag string) error {
	start := time.Now()
	a, _, err := setup(args)
	if err != nil {
		return err
	}
	defer a.Close()

	tree, err := a.fetchTree(ctx)
	if err != nil {
		return err
	}
	files, err := repo.LoadSources(ctx, a.source, tree, a.loadOptions())
	if err != nil {
		return err
	}
	facts := analysis.AnalyzeCodebase(files)
	a.logger.Debug("analyzed sources", "files", len(files), "facts", len(facts.Files))

	res := a.orch.GenerateArchitectureDiagram(ctx, orchestrator.DiagramRequest{
		Repo:  a.scope,
		Tree:  tree,
		Facts: facts,
	})
	return render(w, &output.Report{
		Command:  "diagram",
		Repo:     a.ref.String(),
		Diagram:  &res,
		Duration: time.Since(start),
	}, formatFlag)
}
