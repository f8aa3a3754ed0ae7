package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/julianshen/repolens/internal/cache"
	"github.com/julianshen/repolens/internal/config"
	"github.com/julianshen/repolens/internal/orchestrator"
	"github.com/julianshen/repolens/internal/prompt"
	"github.com/julianshen/repolens/internal/provider"
	"github.com/julianshen/repolens/internal/queue"
	"github.com/julianshen/repolens/internal/repo"
	"github.com/julianshen/repolens/internal/store"
)

// memoryCachePath selects the in-process cache.
const memoryCachePath = "memory"

// app holds what every repository command needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	source repo.Source
	ref    repo.Reference
	// scope identifies the repository in cache keys.
	scope   string
	orch    *orchestrator.Orchestrator
	closers []func() error
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func loadConfig() (*config.Config, error) {
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = config.DefaultPath()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// setup resolves the repository argument (or --local) and builds the
// orchestrator. It returns the arguments left after the repository.
func setup(args []string) (*app, []string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(os.Stderr, verbose)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}
	rest := args
	if localDir != "" {
		abs, err := filepath.Abs(localDir)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving %s: %w", localDir, err)
		}
		src, err := repo.NewLocalSource(abs, logger)
		if err != nil {
			return nil, nil, err
		}
		a.source = src
		a.ref = repo.Reference{Owner: "local", Name: filepath.Base(abs)}
		a.scope = "local:" + abs
	} else {
		if len(args) == 0 {
			return nil, nil, fmt.Errorf("%w: a repository (owner/name or URL) or --local is required", repo.ErrInvalidReference)
		}
		ref, err := repo.ParseReference(args[0])
		if err != nil {
			return nil, nil, err
		}
		src, err := newSource(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		a.source = src
		a.ref = ref
		a.scope = cfg.Source.Host + ":" + ref.String()
		rest = args[1:]
	}

	invoker, err := provider.NewInvoker(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating inference client: %w", err)
	}
	c, closeCache := openCache(cfg, logger)
	a.closers = append(a.closers, closeCache)

	q := queue.New(queue.WithMinInterval(cfg.Queue.MinInterval), queue.WithLogger(logger))
	a.closers = append(a.closers, func() error { q.Close(); return nil })

	a.orch = orchestrator.New(invoker, q,
		orchestrator.WithCache(c),
		orchestrator.WithPromptBuilder(prompt.New(orchestrator.PromptBudgets(cfg))),
		orchestrator.WithPolicy(orchestrator.PolicyFromConfig(cfg)),
		orchestrator.WithLogger(logger),
	)
	return a, rest, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Debug("close failed", "error", err)
		}
	}
}

func newSource(cfg *config.Config, logger *slog.Logger) (repo.Source, error) {
	switch cfg.Source.Host {
	case "gitlab":
		return repo.NewGitLabSource(repo.GitLabConfig{
			Token:             config.ResolveToken(cfg.Source.TokenSource, cfg.Source.Token, "GITLAB_TOKEN"),
			BaseURL:           cfg.Source.BaseURL,
			RequestsPerSecond: cfg.Source.RequestsPerSecond,
			Logger:            logger,
		})
	default:
		opts := []repo.GitHubOption{
			repo.WithToken(config.ResolveToken(cfg.Source.TokenSource, cfg.Source.Token, "GITHUB_TOKEN", "GH_TOKEN")),
			repo.WithRequestsPerSecond(cfg.Source.RequestsPerSecond),
			repo.WithConcurrency(cfg.Source.Concurrency),
			repo.WithGitHubLogger(logger),
		}
		if cfg.Source.BaseURL != "" {
			opts = append(opts, repo.WithBaseURL(cfg.Source.BaseURL))
		}
		return repo.NewGitHubSource(opts...)
	}
}

// openCache opens the sqlite cache, falling back to memory when the file
// cannot be opened. The cache never fails a command.
func openCache(cfg *config.Config, logger *slog.Logger) (*cache.Cache, func() error) {
	opts := []cache.Option{cache.WithTTL(cfg.Cache.TTL), cache.WithLogger(logger)}
	memory := func() (*cache.Cache, func() error) {
		return cache.New(cache.NewMemoryStorage(cfg.Cache.MaxEntries), opts...), func() error { return nil }
	}
	if cfg.Cache.Path == "" || cfg.Cache.Path == memoryCachePath {
		return memory()
	}
	s, err := openStore(cfg)
	if err != nil {
		logger.Warn("cache unavailable, using memory", "path", cfg.Cache.Path, "error", err)
		return memory()
	}
	return cache.New(s, opts...), s.Close
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Cache.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return store.NewStore(cfg.Cache.Path, store.WithMaxItems(cfg.Cache.MaxEntries))
}

// fetchTree lists the repository from its root.
func (a *app) fetchTree(ctx context.Context) (*repo.Node, error) {
	tree, err := a.source.FetchTree(ctx, a.ref.Owner, a.ref.Name, "", a.cfg.Source.MaxDepth)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", a.ref, err)
	}
	return tree, nil
}

// locate finds p by listing its parent directory; directories are then
// listed to the configured depth.
func (a *app) locate(ctx context.Context, p string) (*repo.Node, error) {
	parent := path.Dir(p)
	if parent == "." || parent == "/" {
		parent = ""
	}
	listing, err := a.source.FetchTree(ctx, a.ref.Owner, a.ref.Name, parent, 1)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", a.ref, err)
	}
	node := listing.Find(path.Base(p))
	if node == nil || node == listing {
		return nil, &repo.FetchError{Kind: repo.NotFound, Op: "locate " + p, Err: errors.New("no such file or directory")}
	}
	if !node.IsDir() {
		return node, nil
	}
	sub, err := a.source.FetchTree(ctx, a.ref.Owner, a.ref.Name, p, a.cfg.Source.MaxDepth)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", p, err)
	}
	return sub, nil
}

func (a *app) loadOptions() repo.LoadOptions {
	return repo.LoadOptions{
		MaxFiles:    a.cfg.Source.MaxFiles,
		Concurrency: a.cfg.Source.Concurrency,
		Logger:      a.logger,
	}
}
