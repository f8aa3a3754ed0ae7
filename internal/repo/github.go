package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"github.com/julianshen/repolens/internal/integrations"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// GitHubSource lists repositories through the GitHub contents API.
type GitHubSource struct {
	client      *github.Client
	fetcher     *integrations.HTTPFetcher
	limiter     *rate.Limiter
	concurrency int
	logger      *slog.Logger
}

// GitHubOption customizes a GitHubSource.
type GitHubOption func(*githubSettings)

type githubSettings struct {
	token       string
	baseURL     string
	rps         float64
	concurrency int
	httpClient  *http.Client
	logger      *slog.Logger
}

// WithToken authenticates API and raw requests.
func WithToken(token string) GitHubOption {
	return func(s *githubSettings) { s.token = token }
}

// WithBaseURL points the client at a GitHub Enterprise or test server.
func WithBaseURL(u string) GitHubOption {
	return func(s *githubSettings) { s.baseURL = u }
}

// WithRequestsPerSecond paces API and raw requests; zero disables pacing.
func WithRequestsPerSecond(rps float64) GitHubOption {
	return func(s *githubSettings) { s.rps = rps }
}

// WithConcurrency bounds parallel directory listings.
func WithConcurrency(n int) GitHubOption {
	return func(s *githubSettings) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithHTTPClient replaces the HTTP client used for API and raw requests.
func WithHTTPClient(c *http.Client) GitHubOption {
	return func(s *githubSettings) { s.httpClient = c }
}

// WithGitHubLogger sets the logger.
func WithGitHubLogger(l *slog.Logger) GitHubOption {
	return func(s *githubSettings) { s.logger = l }
}

// NewGitHubSource creates a GitHub-backed Source.
func NewGitHubSource(opts ...GitHubOption) (*GitHubSource, error) {
	s := githubSettings{concurrency: 4, logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}

	client := github.NewClient(s.httpClient)
	if s.token != "" {
		client = client.WithAuthToken(s.token)
	}
	if s.baseURL != "" {
		base, err := url.Parse(strings.TrimRight(s.baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parsing GitHub base URL: %w", err)
		}
		client.BaseURL = base
	}

	var limiter *rate.Limiter
	if s.rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.rps), 1)
	}
	fetchOpts := []integrations.FetcherOption{integrations.WithLimiter(limiter), integrations.WithClient(s.httpClient)}
	if s.token != "" {
		fetchOpts = append(fetchOpts, integrations.WithHeader("Authorization", "Bearer "+s.token))
	}
	return &GitHubSource{
		client:      client,
		fetcher:     integrations.NewHTTPFetcher(30*time.Second, fetchOpts...),
		limiter:     limiter,
		concurrency: s.concurrency,
		logger:      s.logger,
	}, nil
}

// FetchTree lists the repository breadth-first, one level at a time, with
// the directories of a level listed in parallel.
func (g *GitHubSource) FetchTree(ctx context.Context, owner, name, root string, maxDepth int) (*Node, error) {
	root = strings.Trim(root, "/")
	rootNode := &Node{Name: name, Path: root, Kind: KindDirectory}
	if root != "" {
		rootNode.Name = path.Base(root)
	}
	if maxDepth < 1 {
		maxDepth = 1
	}

	level := []*Node{rootNode}
	for depth := 1; depth <= maxDepth && len(level) > 0; depth++ {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(g.concurrency)
		for _, dir := range level {
			dir := dir
			eg.Go(func() error {
				children, err := g.listDir(egCtx, owner, name, dir.Path)
				if err != nil {
					// Only the root listing is fatal; deeper failures leave
					// the directory without children.
					if dir == rootNode {
						return err
					}
					g.logger.Warn("listing directory failed", "repo", owner+"/"+name, "path", dir.Path, "error", err)
					return nil
				}
				dir.Children = children
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}

		var next []*Node
		for _, dir := range level {
			for _, c := range dir.Children {
				if c.IsDir() && !IsIgnoredDir(c.Name) {
					next = append(next, c)
				}
			}
		}
		level = next
	}
	return rootNode, nil
}

func (g *GitHubSource) listDir(ctx context.Context, owner, name, dirPath string) ([]*Node, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{Kind: Network, Op: "list " + dirPath, Err: err}
		}
	}
	file, entries, resp, err := g.client.Repositories.GetContents(ctx, owner, name, dirPath, nil)
	if err != nil {
		return nil, githubError("list "+owner+"/"+name+"/"+dirPath, resp, err)
	}
	if file != nil {
		return nil, &FetchError{Kind: Other, Op: "list " + dirPath, Err: errors.New("path is a file")}
	}
	nodes := make([]*Node, 0, len(entries))
	for _, e := range entries {
		n := &Node{Name: e.GetName(), Path: e.GetPath()}
		switch e.GetType() {
		case "dir":
			n.Kind = KindDirectory
		case "file":
			n.Kind = KindFile
			n.Size = int64(e.GetSize())
			n.URL = e.GetDownloadURL()
		default:
			// symlinks and submodules carry no listable content
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// FetchFileContent downloads a raw file URL.
func (g *GitHubSource) FetchFileContent(ctx context.Context, rawURL string) (string, error) {
	body, err := g.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return "", rawFetchError(rawURL, err)
	}
	return body, nil
}

func githubError(op string, resp *github.Response, err error) error {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	switch {
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		return &FetchError{Kind: RateLimited, Op: op, Err: err}
	case resp != nil && resp.StatusCode == http.StatusNotFound:
		return &FetchError{Kind: NotFound, Op: op, Err: err}
	case resp != nil && resp.StatusCode == http.StatusTooManyRequests:
		return &FetchError{Kind: RateLimited, Op: op, Err: err}
	case resp == nil && isNetworkError(err):
		return &FetchError{Kind: Network, Op: op, Err: err}
	default:
		return &FetchError{Kind: Other, Op: op, Err: err}
	}
}

func rawFetchError(rawURL string, err error) error {
	op := "fetch " + rawURL
	var statusErr *integrations.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.RateLimited:
			return &FetchError{Kind: RateLimited, Op: op, Err: err}
		case statusErr.StatusCode == http.StatusNotFound:
			return &FetchError{Kind: NotFound, Op: op, Err: err}
		default:
			return &FetchError{Kind: Other, Op: op, Err: err}
		}
	}
	if isNetworkError(err) {
		return &FetchError{Kind: Network, Op: op, Err: err}
	}
	return &FetchError{Kind: Other, Op: op, Err: err}
}

func isNetworkError(err error) bool {
	var netErr net.Error
	var urlErr *url.Error
	return errors.As(err, &netErr) || errors.As(err, &urlErr) ||
		errors.Is(err, context.DeadlineExceeded)
}
