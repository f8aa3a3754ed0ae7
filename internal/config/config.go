package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the top-level application configuration.
type Config struct {
	Provider ProviderConfig `toml:"provider"`
	Queue    QueueConfig    `toml:"queue"`
	Retry    RetryConfig    `toml:"retry"`
	Cache    CacheConfig    `toml:"cache"`
	Source   SourceConfig   `toml:"source"`
	Prompt   PromptConfig   `toml:"prompt"`
}

// ProviderConfig selects the inference endpoint and the candidate models.
type ProviderConfig struct {
	// Default is "gemini" or the name of an openai_compatible entry.
	Default string `toml:"default"`
	// Models are tried in order.
	Models       []string                 `toml:"models"`
	APIKeySource string                   `toml:"api_key_source"`
	APIKey       string                   `toml:"api_key"`
	BaseURL      string                   `toml:"base_url"`
	OpenAI       []OpenAICompatibleConfig `toml:"openai_compatible"`
}

// OpenAICompatibleConfig holds settings for an OpenAI-compatible provider.
type OpenAICompatibleConfig struct {
	Name         string            `toml:"name"`
	BaseURL      string            `toml:"base_url"`
	APIKeySource string            `toml:"api_key_source"`
	APIKey       string            `toml:"api_key"`
	ExtraHeaders map[string]string `toml:"extra_headers"`
}

// QueueConfig paces calls to the inference endpoint.
type QueueConfig struct {
	MinInterval time.Duration `toml:"min_interval"`
}

// RetryConfig bounds retries per candidate model.
type RetryConfig struct {
	Attempts        int           `toml:"attempts"`
	ContentAttempts int           `toml:"content_attempts"`
	BaseDelay       time.Duration `toml:"base_delay"`
	MaxDelay        time.Duration `toml:"max_delay"`
}

// CacheConfig locates the response cache.
type CacheConfig struct {
	// Path is a sqlite file, or "memory".
	Path       string        `toml:"path"`
	TTL        time.Duration `toml:"ttl"`
	MaxEntries int           `toml:"max_entries"`
}

// SourceConfig configures the content-hosting client.
type SourceConfig struct {
	Host              string  `toml:"host"`
	TokenSource       string  `toml:"token_source"`
	Token             string  `toml:"token"`
	BaseURL           string  `toml:"base_url"`
	MaxDepth          int     `toml:"max_depth"`
	MaxFiles          int     `toml:"max_files"`
	Concurrency       int     `toml:"concurrency"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// PromptConfig holds the per-kind character budgets.
type PromptConfig struct {
	FileBudget     int `toml:"file_budget"`
	QuestionBudget int `toml:"question_budget"`
	DiagramBudget  int `toml:"diagram_budget"`
	SummaryBudget  int `toml:"summary_budget"`
}

// DefaultConfig returns a Config populated with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Default:      "gemini",
			Models:       []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-2.0-flash-lite"},
			APIKeySource: "env",
		},
		Queue: QueueConfig{
			MinInterval: 4 * time.Second,
		},
		Retry: RetryConfig{
			Attempts:        3,
			ContentAttempts: 2,
			BaseDelay:       2 * time.Second,
			MaxDelay:        30 * time.Second,
		},
		Cache: CacheConfig{
			Path:       filepath.Join(userDir(os.UserCacheDir), "repolens", "cache.db"),
			TTL:        24 * time.Hour,
			MaxEntries: 500,
		},
		Source: SourceConfig{
			Host:              "github",
			TokenSource:       "env",
			MaxDepth:          3,
			MaxFiles:          60,
			Concurrency:       4,
			RequestsPerSecond: 5,
		},
		Prompt: PromptConfig{
			FileBudget:     60000,
			QuestionBudget: 30000,
			DiagramBudget:  20000,
			SummaryBudget:  40000,
		},
	}
}

// DefaultPath returns ~/.config/repolens/config.toml.
func DefaultPath() string {
	return filepath.Join(userDir(os.UserConfigDir), "repolens", "config.toml")
}

func userDir(lookup func() (string, error)) string {
	dir, err := lookup()
	if err != nil || dir == "" {
		return "."
	}
	return dir
}

// Load reads the TOML file at path over the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if len(c.Provider.Models) == 0 {
		return fmt.Errorf("config: provider.models must list at least one model")
	}
	if c.Queue.MinInterval < 0 {
		return fmt.Errorf("config: queue.min_interval must not be negative")
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("config: retry.attempts must be at least 1")
	}
	switch c.Source.Host {
	case "github", "gitlab":
	default:
		return fmt.Errorf("config: unknown source.host %q", c.Source.Host)
	}
	return nil
}
