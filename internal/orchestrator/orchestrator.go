// Package orchestrator runs the AI-backed workflows: free-text
// explanations and answers, and architecture diagram extraction. Every
// inference call goes through one shared queue; failures come back as
// tagged results instead of errors.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/julianshen/repolens/internal/analysis"
	"github.com/julianshen/repolens/internal/arch"
	"github.com/julianshen/repolens/internal/cache"
	"github.com/julianshen/repolens/internal/config"
	"github.com/julianshen/repolens/internal/diagram"
	"github.com/julianshen/repolens/internal/prompt"
	"github.com/julianshen/repolens/internal/provider"
	"github.com/julianshen/repolens/internal/queue"
	"github.com/julianshen/repolens/internal/repo"
	"github.com/julianshen/repolens/internal/response"
	"github.com/julianshen/repolens/internal/retry"
)

// ExplanationKind selects what GenerateExplanation explains.
type ExplanationKind string

const (
	KindRepository ExplanationKind = "repo"
	KindDirectory  ExplanationKind = "dir"
	KindFile       ExplanationKind = "file"
	KindFunctions  ExplanationKind = "functions"
)

// diagramPath is the logical cache path of a repository's diagram.
const diagramPath = "architecture"

var (
	textConfig = provider.GenerationConfig{
		Temperature:     provider.Temperature(0.4),
		MaxOutputTokens: 8192,
		TopK:            40,
		TopP:            0.95,
	}
	diagramConfig = provider.GenerationConfig{
		Temperature:     provider.Temperature(0.1),
		MaxOutputTokens: 4096,
		TopK:            20,
		TopP:            0.8,
		JSONResponse:    true,
	}
)

// ExplanationRequest describes one explanation. Tree is the repository
// root for KindRepository and the directory node for KindDirectory; the
// file kinds use Content and Functions.
type ExplanationRequest struct {
	Repo      string
	Kind      ExplanationKind
	Path      string
	Tree      *repo.Node
	Readme    string
	Content   string
	Functions []analysis.Function
}

// QuestionRequest is a question about a repository.
type QuestionRequest struct {
	Repo     string
	Question string
	Tree     *repo.Node
	Files    []analysis.SourceFile
}

// DiagramRequest carries what architecture extraction needs. Tree also
// feeds the fallback diagram.
type DiagramRequest struct {
	Repo  string
	Tree  *repo.Node
	Facts analysis.CodebaseFacts
}

type cachedText struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

type cachedDiagram struct {
	Markup string     `json:"markup"`
	Data   *arch.Data `json:"data"`
	Model  string     `json:"model"`
}

// Orchestrator composes the queue, the retry policy, the prompt builder,
// the response parser, the diagram synthesizers and the cache.
type Orchestrator struct {
	invoker provider.Invoker
	queue   *queue.Queue
	cache   *cache.Cache
	prompts *prompt.Builder
	policy  retry.Policy
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *slog.Logger
	newID   func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache sets the response cache. The default is an unbounded
// in-memory cache.
func WithCache(c *cache.Cache) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.cache = c
		}
	}
}

// WithPromptBuilder overrides the default prompt builder.
func WithPromptBuilder(b *prompt.Builder) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.prompts = b
		}
	}
}

// WithPolicy sets the candidate models and retry limits.
func WithPolicy(p retry.Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithSleeper replaces the backoff sleep (useful for tests).
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an Orchestrator. q must be the queue shared by every
// caller of invoker.
func New(invoker provider.Invoker, q *queue.Queue, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		invoker: invoker,
		queue:   q,
		prompts: prompt.New(prompt.Budgets{}),
		policy:  retry.Policy{Candidates: config.DefaultConfig().Provider.Models},
		logger:  slog.Default(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cache == nil {
		o.cache = cache.New(cache.NewMemoryStorage(0), cache.WithLogger(o.logger))
	}
	return o
}

// PolicyFromConfig builds the retry policy from configuration.
func PolicyFromConfig(cfg *config.Config) retry.Policy {
	return retry.Policy{
		Candidates:      cfg.Provider.Models,
		Attempts:        cfg.Retry.Attempts,
		ContentAttempts: cfg.Retry.ContentAttempts,
		BaseDelay:       cfg.Retry.BaseDelay,
		MaxDelay:        cfg.Retry.MaxDelay,
	}
}

// PromptBudgets maps configuration onto prompt budgets.
func PromptBudgets(cfg *config.Config) prompt.Budgets {
	return prompt.Budgets{
		File:     cfg.Prompt.FileBudget,
		Question: cfg.Prompt.QuestionBudget,
		Diagram:  cfg.Prompt.DiagramBudget,
		Summary:  cfg.Prompt.SummaryBudget,
	}
}

// GenerateExplanation explains a repository, directory, file or the
// functions of a file.
func (o *Orchestrator) GenerateExplanation(ctx context.Context, req ExplanationRequest) Result {
	var text string
	switch req.Kind {
	case KindRepository:
		if req.Tree != nil {
			text = o.prompts.Repository(prompt.RepositoryInput{Repo: req.Repo, Tree: req.Tree, Readme: req.Readme})
		}
	case KindDirectory:
		if req.Tree != nil {
			text = o.prompts.Directory(prompt.DirectoryInput{Repo: req.Repo, Dir: req.Tree})
		}
	case KindFile, KindFunctions:
		if strings.TrimSpace(req.Content) == "" {
			break
		}
		in := prompt.FileInput{Repo: req.Repo, Path: req.Path, Content: req.Content, Functions: req.Functions}
		if req.Kind == KindFile {
			text = o.prompts.File(in)
		} else {
			text = o.prompts.Functions(in)
		}
	}
	key := cache.GenerateKey(req.Repo, req.Path, string(req.Kind))
	return o.generateText(ctx, "explain", "Explanation", key, text)
}

// GenerateQuestionResponse answers a question about a repository.
func (o *Orchestrator) GenerateQuestionResponse(ctx context.Context, req QuestionRequest) Result {
	var text string
	if strings.TrimSpace(req.Question) != "" {
		text = o.prompts.Question(prompt.QuestionInput{
			Repo: req.Repo, Question: req.Question, Tree: req.Tree, Files: req.Files,
		})
	}
	key := cache.GenerateKey(req.Repo, "", "question:"+req.Question)
	return o.generateText(ctx, "ask", "Answer", key, text)
}

func (o *Orchestrator) generateText(ctx context.Context, op, what, key, promptText string) Result {
	id := o.newID()
	logger := o.logger.With("op", op, "request_id", id)
	if promptText == "" {
		logger.Warn("request rejected", "reason", ReasonInvalidInput)
		return Result{Status: StatusDegraded, Reason: ReasonInvalidInput, Text: degradedText(what, ReasonInvalidInput), RequestID: id}
	}

	if hit, ok := cache.Get[cachedText](o.cache, key); ok {
		logger.Debug("cache hit", "key", key)
		return Result{
			Status: StatusSuccess, Text: hit.Text, Snippets: response.ExtractSnippets(hit.Text),
			Model: hit.Model, Cached: true, RequestID: id,
		}
	}

	text, report, err := retry.Run(ctx, o.executor(logger), func(ctx context.Context, model string) (string, error) {
		resp, err := o.invoke(ctx, model, promptText, textConfig)
		if err != nil {
			return "", err
		}
		return response.ExtractText(resp)
	})
	if err != nil {
		reason := ReasonFor(err)
		logger.Warn("degraded result", "reason", reason, "attempts", report.Calls, "error", err)
		return Result{
			Status: StatusDegraded, Reason: reason, Text: degradedText(what, reason),
			Attempts: report.Calls, RequestID: id,
		}
	}

	cache.Set(o.cache, key, cachedText{Text: text, Model: report.Candidate})
	logger.Info("generated", "model", report.Candidate, "attempts", report.Calls)
	return Result{
		Status: StatusSuccess, Text: text, Snippets: response.ExtractSnippets(text),
		Model: report.Candidate, Attempts: report.Calls, RequestID: id,
	}
}

// GenerateArchitectureDiagram extracts the architecture of a repository
// and renders it. When extraction fails the diagram is synthesized from
// the directory tree instead; fallback diagrams are not cached.
func (o *Orchestrator) GenerateArchitectureDiagram(ctx context.Context, req DiagramRequest) DiagramResult {
	id := o.newID()
	logger := o.logger.With("op", "diagram", "request_id", id)
	key := cache.GenerateKey(req.Repo, diagramPath, "diagram")

	if hit, ok := cache.Get[cachedDiagram](o.cache, key); ok {
		logger.Debug("cache hit", "key", key)
		return DiagramResult{
			Status: StatusSuccess, Markup: hit.Markup, Data: hit.Data,
			Model: hit.Model, Cached: true, RequestID: id,
		}
	}

	promptText := o.prompts.Architecture(prompt.ArchitectureInput{Repo: req.Repo, Tree: req.Tree, Facts: req.Facts})
	data, report, err := retry.Run(ctx, o.executor(logger), func(ctx context.Context, model string) (*arch.Data, error) {
		resp, err := o.invoke(ctx, model, promptText, diagramConfig)
		if err != nil {
			return nil, err
		}
		return response.ExtractArchitecture(resp)
	})
	if err != nil {
		reason := ReasonFor(err)
		logger.Warn("falling back to directory diagram", "reason", reason, "attempts", report.Calls, "error", err)
		return DiagramResult{
			Status: StatusFallback, Reason: reason, Markup: diagram.FromTree(req.Tree),
			Attempts: report.Calls, RequestID: id,
		}
	}

	markup := diagram.Synthesize(data)
	cache.Set(o.cache, key, cachedDiagram{Markup: markup, Data: data, Model: report.Candidate})
	logger.Info("generated", "model", report.Candidate, "attempts", report.Calls,
		"components", len(data.Components), "relationships", len(data.Relationships))
	return DiagramResult{
		Status: StatusSuccess, Markup: markup, Data: data,
		Model: report.Candidate, Attempts: report.Calls, RequestID: id,
	}
}

// invoke schedules one endpoint call on the shared queue.
func (o *Orchestrator) invoke(ctx context.Context, model, promptText string, cfg provider.GenerationConfig) (*provider.Response, error) {
	return queue.Schedule(o.queue, func() (*provider.Response, error) {
		return o.invoker.Invoke(ctx, model, promptText, cfg)
	})
}

func (o *Orchestrator) executor(logger *slog.Logger) *retry.Executor {
	return &retry.Executor{
		Policy:   o.policy,
		Classify: Classify,
		Sleep:    o.sleep,
		Logger:   logger,
	}
}
