// Package gemini implements provider.Invoker for the Generative Language
// API generateContent endpoint.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/julianshen/repolens/internal/provider"
)

const maxResponseBytes = 8 << 20

func init() {
	provider.RegisterInvoker("gemini", func(baseURL, apiKey string, extraHeaders map[string]string) provider.Invoker {
		return New(baseURL, apiKey, WithHeaders(extraHeaders))
	})
}

// Provider calls {baseURL}/v1beta/models/{model}:generateContent.
type Provider struct {
	baseURL      string
	apiKey       string
	extraHeaders map[string]string
	client       *http.Client
}

// Option customizes a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.client = c
		}
	}
}

// WithHeaders adds headers to every request.
func WithHeaders(h map[string]string) Option {
	return func(p *Provider) {
		for k, v := range h {
			p.extraHeaders[k] = v
		}
	}
}

// New creates a Gemini provider.
func New(baseURL, apiKey string, opts ...Option) *Provider {
	p := &Provider{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		extraHeaders: map[string]string{},
		client:       &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	TopK             int      `json:"topK,omitempty"`
	TopP             float64  `json:"topP,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type apiRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type apiResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay"`
		} `json:"details"`
	} `json:"error"`
}

// Invoke sends one generateContent request and returns the first candidate.
func (p *Provider) Invoke(ctx context.Context, model, prompt string, cfg provider.GenerationConfig) (*provider.Response, error) {
	req := apiRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
			TopK:            cfg.TopK,
			TopP:            cfg.TopP,
		},
	}
	if cfg.JSONResponse {
		req.GenerationConfig.ResponseMimeType = "application/json"
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("building request body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, url.PathEscape(model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)
	for k, v := range p.extraHeaders {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp, raw)
	}

	var decoded apiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	out := &provider.Response{Raw: raw}
	if decoded.PromptFeedback != nil {
		out.BlockReason = decoded.PromptFeedback.BlockReason
	}
	if len(decoded.Candidates) == 0 {
		return out, nil
	}
	first := decoded.Candidates[0]
	var text strings.Builder
	for _, pt := range first.Content.Parts {
		text.WriteString(pt.Text)
	}
	out.Text = text.String()
	out.FinishReason = normalizeFinishReason(first.FinishReason)
	return out, nil
}

func statusError(resp *http.Response, raw []byte) *provider.StatusError {
	statusErr := &provider.StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	if d, ok := provider.ParseRetryAfter(resp.Header.Get("Retry-After")); ok {
		statusErr.RetryAfter = d
	}

	var apiErr apiError
	if json.Unmarshal(raw, &apiErr) != nil {
		return statusErr
	}
	if apiErr.Error.Message != "" {
		statusErr.Body = apiErr.Error.Status + ": " + apiErr.Error.Message
	}
	for _, d := range apiErr.Error.Details {
		if d.RetryDelay == "" {
			continue
		}
		if delay, err := time.ParseDuration(d.RetryDelay); err == nil && delay > 0 {
			statusErr.RetryAfter = delay
			break
		}
	}
	return statusErr
}

func normalizeFinishReason(reason string) string {
	switch reason {
	case "":
		return ""
	case "STOP":
		return provider.FinishStop
	case "MAX_TOKENS":
		return provider.FinishMaxTokens
	case "SAFETY", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII", "IMAGE_SAFETY":
		return provider.FinishSafety
	case "RECITATION":
		return provider.FinishRecitation
	default:
		return provider.FinishOther
	}
}
