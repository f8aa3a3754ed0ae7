package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianshen/repolens/internal/analysis"
	"github.com/julianshen/repolens/internal/cache"
	"github.com/julianshen/repolens/internal/diagram"
	"github.com/julianshen/repolens/internal/provider"
	"github.com/julianshen/repolens/internal/queue"
	"github.com/julianshen/repolens/internal/repo"
	"github.com/julianshen/repolens/internal/retry"
)

// ---------- mock invoker ----------

type reply struct {
	resp *provider.Response
	err  error
}

// mockInvoker returns scripted replies in order, repeating the last one.
type mockInvoker struct {
	mu      sync.Mutex
	replies []reply
	models  []string
	configs []provider.GenerationConfig
}

func (m *mockInvoker) Invoke(_ context.Context, model, _ string, cfg provider.GenerationConfig) (*provider.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := len(m.models)
	m.models = append(m.models, model)
	m.configs = append(m.configs, cfg)
	if len(m.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	r := m.replies[i]
	return r.resp, r.err
}

func (m *mockInvoker) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.models...)
}

func text(s string) reply {
	return reply{resp: &provider.Response{Text: s, FinishReason: provider.FinishStop}}
}

func failure(code int, retryAfter time.Duration) reply {
	return reply{err: &provider.StatusError{StatusCode: code, Body: "err", RetryAfter: retryAfter}}
}

// ---------- fake clock ----------

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// ---------- harness ----------

type harness struct {
	orch    *Orchestrator
	invoker *mockInvoker
	queue   *queue.Queue
	backoff []time.Duration
	policy  retry.Policy
}

func newHarness(t *testing.T, replies ...reply) *harness {
	t.Helper()
	h := &harness{
		invoker: &mockInvoker{replies: replies},
		queue:   queue.New(queue.WithMinInterval(0)),
		policy: retry.Policy{
			Candidates:      []string{"model-a", "model-b"},
			Attempts:        3,
			ContentAttempts: 2,
			BaseDelay:       time.Second,
			MaxDelay:        10 * time.Second,
		},
	}
	t.Cleanup(h.queue.Close)
	h.orch = h.build()
	return h
}

func (h *harness) build(opts ...Option) *Orchestrator {
	base := []Option{
		WithPolicy(h.policy),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			h.backoff = append(h.backoff, d)
			return nil
		}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return New(h.invoker, h.queue, append(base, opts...)...)
}

func sampleTree() *repo.Node {
	return &repo.Node{Name: "app", Kind: repo.KindDirectory, Children: []*repo.Node{
		{Name: "node_modules", Kind: repo.KindDirectory},
		{Name: "src", Kind: repo.KindDirectory},
		{Name: "api", Kind: repo.KindDirectory},
		{Name: "web", Kind: repo.KindDirectory},
	}}
}

const archJSON = "```json\n" + `{
  "components": [
    {"id": "ui", "name": "UI", "type": "view", "layer": "presentation"},
    {"id": "api", "name": "API client", "type": "service", "layer": "services"}
  ],
  "relationships": [
    {"from": "ui", "to": "api", "type": "calls"},
    {"from": "ui", "to": "ghost", "type": "calls"}
  ],
  "layers": ["presentation", "services"]
}` + "\n```"

// ---------- diagram workflow ----------

func TestDiagramFallbackTwiceNeverExceedsRetryCap(t *testing.T) {
	h := newHarness(t, failure(503, 0))
	req := DiagramRequest{Repo: "octo/app", Tree: sampleTree()}

	for i := 0; i < 2; i++ {
		res := h.orch.GenerateArchitectureDiagram(context.Background(), req)
		assert.Equal(t, StatusFallback, res.Status)
		assert.Equal(t, ReasonServiceDown, res.Reason)
		assert.False(t, res.Cached)
		assert.Contains(t, res.Markup, diagram.OfflineMarker)
		assert.Contains(t, res.Markup, `"src/"`)
		assert.NotContains(t, res.Markup, "node_modules")
		assert.Equal(t, h.policy.MaxCalls(), res.Attempts)
	}
	assert.Len(t, h.invoker.Calls(), 2*h.policy.MaxCalls())
}

func TestDiagramSuccessIsCached(t *testing.T) {
	h := newHarness(t, text(archJSON))
	req := DiagramRequest{Repo: "octo/app", Tree: sampleTree()}

	first := h.orch.GenerateArchitectureDiagram(context.Background(), req)
	require.Equal(t, StatusSuccess, first.Status)
	assert.Equal(t, "model-a", first.Model)
	assert.Equal(t, 1, first.Attempts)
	require.NotNil(t, first.Data)
	assert.Len(t, first.Data.Components, 2)
	assert.Len(t, first.Data.Relationships, 1, "dangling relationship dropped")
	assert.Contains(t, first.Markup, "  ui --> api\n")
	assert.True(t, h.invoker.configs[0].JSONResponse)

	second := h.orch.GenerateArchitectureDiagram(context.Background(), DiagramRequest{Repo: "Octo/App", Tree: sampleTree()})
	assert.True(t, second.Cached)
	assert.Equal(t, first.Markup, second.Markup)
	assert.Equal(t, "model-a", second.Model)
	assert.Len(t, h.invoker.Calls(), 1)
}

func TestDiagramMalformedRetriesThenAdvancesModel(t *testing.T) {
	h := newHarness(t, text("I cannot help with that."), text("still no json"), text(archJSON))
	res := h.orch.GenerateArchitectureDiagram(context.Background(), DiagramRequest{Repo: "octo/app", Tree: sampleTree()})

	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, []string{"model-a", "model-a", "model-b"}, h.invoker.Calls())
	assert.Equal(t, "model-b", res.Model)
	assert.Equal(t, 3, res.Attempts)
}

// ---------- free-text workflow ----------

func TestExplanationSuccessExtractsSnippetsAndCaches(t *testing.T) {
	h := newHarness(t, text("Entry point.\n\n```go\nfunc main() {}\n```\n"))
	req := ExplanationRequest{Repo: "octo/app", Kind: KindFile, Path: "main.go", Content: "package main\nfunc main() {}\n"}

	res := h.orch.GenerateExplanation(context.Background(), req)
	require.Equal(t, StatusSuccess, res.Status)
	require.Len(t, res.Snippets, 1)
	assert.Equal(t, "go", res.Snippets[0].Language)
	assert.Equal(t, "func main() {}", res.Snippets[0].Code)
	assert.NotEmpty(t, res.RequestID)
	assert.False(t, h.invoker.configs[0].JSONResponse)

	again := h.orch.GenerateExplanation(context.Background(), req)
	assert.True(t, again.Cached)
	assert.Equal(t, res.Text, again.Text)
	assert.Len(t, again.Snippets, 1)
	assert.Len(t, h.invoker.Calls(), 1)

	req.Kind = KindFunctions
	h.orch.GenerateExplanation(context.Background(), req)
	assert.Len(t, h.invoker.Calls(), 2, "functions summary has its own cache entry")
}

func TestRateLimitHonorsServerDelay(t *testing.T) {
	h := newHarness(t, failure(429, 7*time.Second), text("ok"))
	res := h.orch.GenerateQuestionResponse(context.Background(), QuestionRequest{
		Repo: "octo/app", Question: "What does it do?", Tree: sampleTree(),
	})
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, []string{"model-a", "model-a"}, h.invoker.Calls())
	assert.Equal(t, []time.Duration{7 * time.Second}, h.backoff)
	assert.Equal(t, 2, res.Attempts)
}

func TestRateLimitExhaustedIsDegraded(t *testing.T) {
	h := newHarness(t, failure(429, 0))
	res := h.orch.GenerateQuestionResponse(context.Background(), QuestionRequest{Repo: "octo/app", Question: "Why?"})
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, ReasonRateLimited, res.Reason)
	assert.Contains(t, res.Text, "rate limiting")
	assert.Equal(t, 6, res.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, time.Second, 2 * time.Second}, h.backoff)
}

func TestSafetyBlockIsDegradedWithDistinctReason(t *testing.T) {
	h := newHarness(t, reply{resp: &provider.Response{FinishReason: provider.FinishSafety}})
	res := h.orch.GenerateExplanation(context.Background(), ExplanationRequest{
		Repo: "octo/app", Kind: KindRepository, Tree: sampleTree(),
	})
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, ReasonSafety, res.Reason)
	assert.Len(t, h.invoker.Calls(), 4, "content failures capped per model")
}

func TestFatalErrorStopsImmediately(t *testing.T) {
	h := newHarness(t, failure(401, 0))
	res := h.orch.GenerateExplanation(context.Background(), ExplanationRequest{
		Repo: "octo/app", Kind: KindDirectory, Tree: sampleTree(),
	})
	assert.Equal(t, ReasonRejected, res.Reason)
	assert.Len(t, h.invoker.Calls(), 1)
	assert.Empty(t, h.backoff)
}

func TestUnknownModelAdvances(t *testing.T) {
	h := newHarness(t, failure(404, 0), text("answer"))
	res := h.orch.GenerateQuestionResponse(context.Background(), QuestionRequest{Repo: "octo/app", Question: "How?"})
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "model-b", res.Model)
}

func TestInvalidInputNeverCallsEndpoint(t *testing.T) {
	h := newHarness(t, text("unused"))
	res := h.orch.GenerateQuestionResponse(context.Background(), QuestionRequest{Repo: "octo/app", Question: "   "})
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, ReasonInvalidInput, res.Reason)

	res = h.orch.GenerateExplanation(context.Background(), ExplanationRequest{Repo: "octo/app", Kind: KindFile, Path: "empty.go"})
	assert.Equal(t, ReasonInvalidInput, res.Reason)
	assert.Empty(t, h.invoker.Calls())
}

func TestCanceledContextIsDegraded(t *testing.T) {
	h := newHarness(t, failure(503, 0))
	ctx, cancel := context.WithCancel(context.Background())
	h.orch = h.build(WithSleeper(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))
	res := h.orch.GenerateQuestionResponse(ctx, QuestionRequest{Repo: "octo/app", Question: "How?"})
	assert.Equal(t, ReasonCanceled, res.Reason)
	assert.Len(t, h.invoker.Calls(), 1)
}

func TestEveryAttemptPassesThroughQueue(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	h := newHarness(t, failure(503, 0), failure(503, 0), text("ok"))
	q := queue.New(queue.WithMinInterval(4*time.Second), queue.WithClock(clock))
	t.Cleanup(q.Close)
	h.queue = q
	h.orch = h.build()

	res := h.orch.GenerateQuestionResponse(context.Background(), QuestionRequest{Repo: "octo/app", Question: "How?"})
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, []time.Duration{4 * time.Second, 4 * time.Second}, clock.Sleeps(),
		"retries are spaced by the queue like first attempts")
}

func TestSharedCacheAcrossOrchestrators(t *testing.T) {
	shared := cache.New(cache.NewMemoryStorage(0))
	h := newHarness(t, text("explained"))
	first := h.build(WithCache(shared))
	second := h.build(WithCache(shared))
	req := ExplanationRequest{Repo: "octo/app", Kind: KindFile, Path: "a.go", Content: "package a"}

	first.GenerateExplanation(context.Background(), req)
	res := second.GenerateExplanation(context.Background(), req)
	assert.True(t, res.Cached)
	assert.Len(t, h.invoker.Calls(), 1)
}

func TestDiagramPromptCarriesFacts(t *testing.T) {
	var prompts []string
	inv := invokerFunc(func(_ context.Context, _, p string, _ provider.GenerationConfig) (*provider.Response, error) {
		prompts = append(prompts, p)
		return &provider.Response{Text: archJSON, FinishReason: provider.FinishStop}, nil
	})
	q := queue.New(queue.WithMinInterval(0))
	defer q.Close()
	o := New(inv, q, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	facts := analysis.AnalyzeCodebase([]analysis.SourceFile{
		{Path: "src/client.ts", Content: "export const load = () => fetch('/api/v1/items')\n"},
	})
	res := o.GenerateArchitectureDiagram(context.Background(), DiagramRequest{Repo: "octo/app", Tree: sampleTree(), Facts: facts})
	require.Equal(t, StatusSuccess, res.Status)
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "/api/v1/items")
}

type invokerFunc func(ctx context.Context, model, prompt string, cfg provider.GenerationConfig) (*provider.Response, error)

func (f invokerFunc) Invoke(ctx context.Context, model, prompt string, cfg provider.GenerationConfig) (*provider.Response, error) {
	return f(ctx, model, prompt, cfg)
}

// ---------- classification ----------

func TestClassify(t *testing.T) {
	tests := []struct {
		err   error
		class retry.Class
	}{
		{&provider.StatusError{StatusCode: 429}, retry.RateLimited},
		{&provider.StatusError{StatusCode: 500}, retry.Transient},
		{&provider.StatusError{StatusCode: 503}, retry.Transient},
		{&provider.StatusError{StatusCode: 408}, retry.Transient},
		{&provider.StatusError{StatusCode: 404}, retry.Unavailable},
		{&provider.StatusError{StatusCode: 400}, retry.Fatal},
		{&provider.StatusError{StatusCode: 403}, retry.Fatal},
		{fmt.Errorf("wrapped: %w", &provider.StatusError{StatusCode: 401}), retry.Fatal},
		{queue.ErrClosed, retry.Fatal},
		{errors.New("connection reset"), retry.Transient},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.class, Classify(tt.err).Class, "%v", tt.err)
	}

	v := Classify(&provider.StatusError{StatusCode: 429, RetryAfter: 3 * time.Second})
	assert.Equal(t, 3*time.Second, v.RetryAfter)
}

func TestReasonFor(t *testing.T) {
	assert.Equal(t, ReasonNone, ReasonFor(nil))
	assert.Equal(t, ReasonCanceled, ReasonFor(context.Canceled))
	assert.Equal(t, ReasonModelUnavailable, ReasonFor(&provider.StatusError{StatusCode: 404}))
	assert.Equal(t, ReasonServiceDown, ReasonFor(errors.New("dial tcp: refused")))
	assert.Equal(t, ReasonRejected, ReasonFor(&provider.StatusError{StatusCode: 403}))
}
