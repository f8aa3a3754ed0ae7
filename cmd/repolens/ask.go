package main

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/julianshen/repolens/internal/orchestrator"
	"github.com/julianshen/repolens/internal/output"
	"github.com/julianshen/repolens/internal/repo"
)

func askCmd() *cobra.Command {
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "ask [repo] <question>",
		Short: "Ask a question about a repository",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), cmd.OutOrStdout(), args, formatFlag)
		},
	}

	cmd.Flags().StringVar(&formatFlag, "format", "markdown", "output format: markdown, json, yaml")
	return cmd
}

func runAsk(ctx context.Context, w io.Writer, args []string, formatFlag string) error {
	start := time.Now()
	a, rest, err := setup(args)
	if err != nil {
		return err
	}
	defer a.Close()

	question := strings.TrimSpace(strings.Join(rest, " "))
	if question == "" {
		return errors.New("a question is required")
	}

	tree, err := a.fetchTree(ctx)
	if err != nil {
		return err
	}
	files, err := repo.LoadSources(ctx, a.source, tree, a.loadOptions())
	if err != nil {
		return err
	}

	res := a.orch.GenerateQuestionResponse(ctx, orchestrator.QuestionRequest{
		Repo:     a.scope,
		Question: question,
		Tree:     tree,
		Files:    files,
	})
	return render(w, &output.Report{
		Command:  "ask",
		Repo:     a.ref.String(),
		Target:   question,
		Result:   &res,
		Duration: time.Since(start),
	}, formatFlag)
}
