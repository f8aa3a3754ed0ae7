package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/julianshen/repolens/internal/integrations"
	"github.com/xanzy/go-gitlab"
	"golang.org/x/time/rate"
)

// GitLabSource lists repositories through the GitLab repository tree API.
type GitLabSource struct {
	client  *gitlab.Client
	baseURL string
	fetcher *integrations.HTTPFetcher
	limiter *rate.Limiter
	logger  *slog.Logger
}

// GitLabConfig configures a GitLabSource.
type GitLabConfig struct {
	Token string
	// BaseURL is the API root, e.g. https://gitlab.com/api/v4.
	BaseURL           string
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// NewGitLabSource creates a GitLab-backed Source.
func NewGitLabSource(cfg GitLabConfig) (*GitLabSource, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://gitlab.com/api/v4"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	opts := []gitlab.ClientOptionFunc{gitlab.WithBaseURL(cfg.BaseURL), gitlab.WithoutRetries()}
	if cfg.HTTPClient != nil {
		opts = append(opts, gitlab.WithHTTPClient(cfg.HTTPClient))
	}
	client, err := gitlab.NewClient(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GitLab client: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	fetchOpts := []integrations.FetcherOption{
		integrations.WithLimiter(limiter),
		integrations.WithClient(cfg.HTTPClient),
		integrations.WithHeader("PRIVATE-TOKEN", cfg.Token),
	}
	return &GitLabSource{
		client:  client,
		baseURL: client.BaseURL().String(),
		fetcher: integrations.NewHTTPFetcher(30*time.Second, fetchOpts...),
		limiter: limiter,
		logger:  cfg.Logger,
	}, nil
}

// FetchTree lists the tree recursively in pages and keeps entries within
// maxDepth levels of root.
func (g *GitLabSource) FetchTree(ctx context.Context, owner, name, root string, maxDepth int) (*Node, error) {
	pid := owner + "/" + name
	root = strings.Trim(root, "/")
	rootNode := &Node{Name: name, Path: root, Kind: KindDirectory}
	if root != "" {
		rootNode.Name = path.Base(root)
	}
	if maxDepth < 1 {
		maxDepth = 1
	}

	opt := &gitlab.ListTreeOptions{
		ListOptions: gitlab.ListOptions{Page: 1, PerPage: 100},
		Recursive:   gitlab.Ptr(true),
	}
	if root != "" {
		opt.Path = gitlab.Ptr(root)
	}

	dirs := map[string]*Node{root: rootNode}
	for {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, &FetchError{Kind: Network, Op: "list " + pid, Err: err}
			}
		}
		entries, resp, err := g.client.Repositories.ListTree(pid, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, gitlabError("list "+pid, resp, err)
		}
		for _, e := range entries {
			g.place(dirs, pid, root, maxDepth, e)
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return rootNode, nil
}

// place attaches e under its parent. Recursive listings return parents
// before children, so the parent is already in dirs unless it was pruned.
func (g *GitLabSource) place(dirs map[string]*Node, pid, root string, maxDepth int, e *gitlab.TreeNode) {
	rel := strings.TrimPrefix(strings.TrimPrefix(e.Path, root), "/")
	if rel == "" || strings.Count(rel, "/")+1 > maxDepth {
		return
	}
	parent, ok := dirs[path.Dir(e.Path)]
	if path.Dir(e.Path) == "." {
		parent, ok = dirs[root]
	}
	if !ok {
		return
	}
	n := &Node{Name: e.Name, Path: e.Path}
	switch e.Type {
	case "tree":
		n.Kind = KindDirectory
		if !IsIgnoredDir(e.Name) {
			dirs[e.Path] = n
		}
	case "blob":
		n.Kind = KindFile
		n.URL = g.rawURL(pid, e.Path)
	default:
		return
	}
	parent.Children = append(parent.Children, n)
}

func (g *GitLabSource) rawURL(pid, filePath string) string {
	return fmt.Sprintf("%sprojects/%s/repository/files/%s/raw?ref=HEAD",
		g.baseURL, url.PathEscape(pid), url.PathEscape(filePath))
}

// FetchFileContent downloads a raw file URL.
func (g *GitLabSource) FetchFileContent(ctx context.Context, rawURL string) (string, error) {
	body, err := g.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return "", rawFetchError(rawURL, err)
	}
	return body, nil
}

func gitlabError(op string, resp *gitlab.Response, err error) error {
	switch {
	case resp != nil && resp.StatusCode == http.StatusNotFound:
		return &FetchError{Kind: NotFound, Op: op, Err: err}
	case resp != nil && resp.StatusCode == http.StatusTooManyRequests:
		return &FetchError{Kind: RateLimited, Op: op, Err: err}
	case resp == nil && isNetworkError(err):
		return &FetchError{Kind: Network, Op: op, Err: err}
	case errors.Is(err, gitlab.ErrNotFound):
		return &FetchError{Kind: NotFound, Op: op, Err: err}
	default:
		return &FetchError{Kind: Other, Op: op, Err: err}
	}
}
