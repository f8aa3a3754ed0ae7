package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/julianshen/repolens/internal/config"
)

// GeminiBaseURL is the public Generative Language API endpoint.
const GeminiBaseURL = "https://generativelanguage.googleapis.com"

// InvokerConstructor creates an Invoker for one endpoint.
type InvokerConstructor func(baseURL, apiKey string, extraHeaders map[string]string) Invoker

var (
	registryMu sync.RWMutex
	registry   = map[string]InvokerConstructor{}
)

// RegisterInvoker registers a constructor by kind ("gemini", "openai").
func RegisterInvoker(kind string, constructor InvokerConstructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = constructor
}

// Registered lists the registered kinds in sorted order.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func lookup(kind string) (InvokerConstructor, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	constructor, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%s invoker not registered", kind)
	}
	return constructor, nil
}

// NewInvoker creates the Invoker named by cfg.Provider.Default. "gemini"
// selects the Gemini endpoint; any other name must match an
// openai_compatible entry.
func NewInvoker(cfg *config.Config) (Invoker, error) {
	if cfg.Provider.Default == "gemini" {
		return newGeminiInvoker(cfg)
	}
	return newOpenAIInvoker(cfg)
}

func newGeminiInvoker(cfg *config.Config) (Invoker, error) {
	constructor, err := lookup("gemini")
	if err != nil {
		return nil, err
	}
	apiKey, err := config.ResolveAPIKey(cfg.Provider.APIKeySource, cfg.Provider.APIKey, "GEMINI_API_KEY")
	if err != nil {
		return nil, fmt.Errorf("resolving Gemini API key: %w", err)
	}
	baseURL := cfg.Provider.BaseURL
	if baseURL == "" {
		baseURL = GeminiBaseURL
	}
	return constructor(baseURL, apiKey, nil), nil
}

func newOpenAIInvoker(cfg *config.Config) (Invoker, error) {
	name := cfg.Provider.Default
	constructor, err := lookup("openai")
	if err != nil {
		return nil, err
	}
	for _, oc := range cfg.Provider.OpenAI {
		if oc.Name != name {
			continue
		}
		envVar := strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_API_KEY"
		apiKey, err := config.ResolveAPIKey(oc.APIKeySource, oc.APIKey, envVar)
		if err != nil {
			return nil, fmt.Errorf("resolving %s API key: %w", name, err)
		}
		return constructor(oc.BaseURL, apiKey, oc.ExtraHeaders), nil
	}
	return nil, fmt.Errorf("unknown provider: %q", name)
}
