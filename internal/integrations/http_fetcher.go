package integrations

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMaxBytes caps a single download at 1 MB.
const DefaultMaxBytes = 1 << 20

// StatusError reports a non-2xx download.
type StatusError struct {
	URL        string
	StatusCode int
	// RateLimited is set for 429, and for 403 responses that carry an
	// exhausted X-RateLimit-Remaining header.
	RateLimited bool
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %q: HTTP %d", e.URL, e.StatusCode)
}

// HTTPFetcher retrieves raw file contents with a timeout, a size limit
// and an optional request rate limit.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
	headers  map[string]string
	limiter  *rate.Limiter
}

// FetcherOption customizes an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithMaxBytes overrides DefaultMaxBytes.
func WithMaxBytes(n int64) FetcherOption {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithHeader adds a header to every request, e.g. an auth token.
func WithHeader(key, value string) FetcherOption {
	return func(f *HTTPFetcher) {
		if value != "" {
			f.headers[key] = value
		}
	}
}

// WithLimiter paces requests.
func WithLimiter(l *rate.Limiter) FetcherOption {
	return func(f *HTTPFetcher) { f.limiter = l }
}

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// NewHTTPFetcher creates a new HTTPFetcher with the given timeout.
func NewHTTPFetcher(timeout time.Duration, opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: DefaultMaxBytes,
		headers:  map[string]string{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves the URL content as a string, truncated to the size
// limit.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("fetch %q: %w", url, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &StatusError{
			URL:        url,
			StatusCode: resp.StatusCode,
			RateLimited: resp.StatusCode == http.StatusTooManyRequests ||
				(resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0"),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	return string(body), nil
}
