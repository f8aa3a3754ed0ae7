package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/julianshen/repolens/internal/provider"
)

const maxResponseBytes = 8 << 20

func init() {
	provider.RegisterInvoker("openai", func(baseURL, apiKey string, extraHeaders map[string]string) provider.Invoker {
		return New(baseURL, apiKey, extraHeaders)
	})
}

// Provider implements provider.Invoker for OpenAI-compatible chat
// completion APIs.
type Provider struct {
	baseURL      string
	apiKey       string
	extraHeaders map[string]string
	client       *http.Client
}

// New creates a new OpenAI-compatible provider.
func New(baseURL, apiKey string, extraHeaders map[string]string) *Provider {
	if extraHeaders == nil {
		extraHeaders = make(map[string]string)
	}
	return &Provider{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		extraHeaders: extraHeaders,
		client:       &http.Client{Timeout: 2 * time.Minute},
	}
}

type apiRequest struct {
	Model          string          `json:"model"`
	Messages       []apiMessage    `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           float64         `json:"top_p,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletion struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Invoke sends one non-streaming chat completion request. TopK has no
// counterpart in this API and is ignored.
func (p *Provider) Invoke(ctx context.Context, model, prompt string, cfg provider.GenerationConfig) (*provider.Response, error) {
	apiReq := apiRequest{
		Model:       model,
		Messages:    []apiMessage{{Role: "user", Content: prompt}},
		MaxTokens:   cfg.MaxOutputTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
	}
	if cfg.JSONResponse {
		apiReq.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("building request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
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
	if resp.StatusCode != http.StatusOK {
		retryAfter, _ := provider.ParseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &provider.StatusError{StatusCode: resp.StatusCode, Body: string(raw), RetryAfter: retryAfter}
	}

	var completion chatCompletion
	if err := json.Unmarshal(raw, &completion); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if completion.Error != nil {
		return nil, fmt.Errorf("api error: %s", strings.TrimSpace(completion.Error.Message))
	}

	out := &provider.Response{Raw: raw}
	if len(completion.Choices) == 0 {
		return out, nil
	}
	choice := completion.Choices[0]
	out.Text = choice.Message.Content
	out.FinishReason = normalizeFinishReason(choice.FinishReason)
	if choice.Message.Refusal != "" && out.Text == "" {
		out.FinishReason = provider.FinishSafety
	}
	return out, nil
}

func normalizeFinishReason(reason string) string {
	switch reason {
	case "":
		return ""
	case "stop":
		return provider.FinishStop
	case "length":
		return provider.FinishMaxTokens
	case "content_filter":
		return provider.FinishSafety
	default:
		return provider.FinishOther
	}
}
