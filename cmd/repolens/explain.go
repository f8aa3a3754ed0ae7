package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/julianshen/repolens/internal/analysis"
	"github.com/julianshen/repolens/internal/orchestrator"
	"github.com/julianshen/repolens/internal/output"
	"github.com/julianshen/repolens/internal/repo"
)

func explainCmd() *cobra.Command {
	var (
		kindFlag   string
		formatFlag string
	)

	cmd := &cobra.Command{
		Use:   "explain [repo] [path]",
		Short: "Explain a repository, directory or file",
		Long: `Explain the whole repository, or the directory or file at path.
--kind functions summarizes each function of a file.`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd.Context(), cmd.OutOrStdout(), args, kindFlag, formatFlag)
		},
	}

	cmd.Flags().StringVar(&kindFlag, "kind", "", "what to explain: repo, dir, file, functions (default: inferred from path)")
	cmd.Flags().StringVar(&formatFlag, "format", "markdown", "output format: markdown, json, yaml")
	return cmd
}

func runExplain(ctx context.Context, w io.Writer, args []string, kindFlag, formatFlag string) error {
	start := time.Now()
	a, rest, err := setup(args)
	if err != nil {
		return err
	}
	defer a.Close()

	target := ""
	if len(rest) > 0 {
		target = strings.Trim(rest[0], "/")
	}
	req, err := a.explanationRequest(ctx, target, orchestrator.ExplanationKind(kindFlag))
	if err != nil {
		return err
	}

	res := a.orch.GenerateExplanation(ctx, req)
	return render(w, &output.Report{
		Command:  "explain",
		Repo:     a.ref.String(),
		Target:   target,
		Result:   &res,
		Duration: time.Since(start),
	}, formatFlag)
}

// explanationRequest gathers the input of one explanation kind.
func (a *app) explanationRequest(ctx context.Context, target string, kind orchestrator.ExplanationKind) (orchestrator.ExplanationRequest, error) {
	req := orchestrator.ExplanationRequest{Repo: a.scope, Path: target}

	if target == "" {
		if kind != "" && kind != orchestrator.KindRepository {
			return req, fmt.Errorf("--kind %s needs a path", kind)
		}
		tree, err := a.fetchTree(ctx)
		if err != nil {
			return req, err
		}
		req.Kind = orchestrator.KindRepository
		req.Tree = tree
		if readme := repo.FindReadme(tree); readme != nil {
			content, err := a.source.FetchFileContent(ctx, readme.URL)
			if err != nil {
				a.logger.Warn("readme unavailable", "path", readme.Path, "error", err)
			}
			req.Readme = content
		}
		return req, nil
	}

	node, err := a.locate(ctx, target)
	if err != nil {
		return req, err
	}
	if kind == "" {
		kind = orchestrator.KindFile
		if node.IsDir() {
			kind = orchestrator.KindDirectory
		}
	}
	req.Kind = kind

	switch kind {
	case orchestrator.KindDirectory:
		if !node.IsDir() {
			return req, fmt.Errorf("%s is not a directory", target)
		}
		req.Tree = node
	case orchestrator.KindFile, orchestrator.KindFunctions:
		if node.IsDir() {
			return req, fmt.Errorf("%s is a directory", target)
		}
		content, err := a.source.FetchFileContent(ctx, node.URL)
		if err != nil {
			return req, fmt.Errorf("downloading %s: %w", target, err)
		}
		req.Content = content
		functions, err := analysis.Outline(ctx, node.Name, []byte(content))
		switch {
		case errors.Is(err, analysis.ErrNoGrammar):
		case err != nil:
			a.logger.Warn("function outline failed", "path", target, "error", err)
		default:
			req.Functions = functions
		}
	default:
		return req, fmt.Errorf("unknown --kind %q (want repo, dir, file or functions)", kind)
	}
	return req, nil
}
