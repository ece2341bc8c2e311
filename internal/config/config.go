// Package config loads and freezes the router's configuration: environment
// variables as the primary source, with an optional on-disk upstreams.json
// overlay that can be hot-reloaded without a restart.
package config

import "time"

// Tier identifies one of the three routing tiers.
type Tier string

const (
	TierCheap    Tier = "cheap"
	TierMedium   Tier = "medium"
	TierFrontier Tier = "frontier"
)

// Provider is the dialect tag understood by the adapter layer.
type Provider string

const (
	ProviderOpenAICompatible Provider = "openai_compatible"
	ProviderOpenRouter       Provider = "openrouter"
	ProviderOpenAI           Provider = "openai"
	ProviderMistral          Provider = "mistral"
	ProviderGroq             Provider = "groq"
	ProviderTogether         Provider = "together"
	ProviderPerplexity       Provider = "perplexity"
	ProviderAnthropic        Provider = "anthropic"
	ProviderGemini           Provider = "gemini"
	ProviderCohere           Provider = "cohere"
	ProviderAzureOpenAI      Provider = "azure_openai"
	ProviderAuto             Provider = "auto"
)

// Upstream is one tier's upstream descriptor.
type Upstream struct {
	Name       string            `json:"name"`
	Provider   Provider          `json:"provider"`
	BaseURL    string            `json:"baseUrl"`
	APIKey     string            `json:"apiKey,omitempty"`
	Model      string            `json:"model,omitempty"`
	Deployment string            `json:"deployment,omitempty"`
	APIVersion string            `json:"apiVersion,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	TimeoutMs  int               `json:"timeoutMs,omitempty"`
}

// Timeout returns the upstream's configured timeout as a time.Duration.
func (u *Upstream) Timeout() time.Duration {
	return time.Duration(u.TimeoutMs) * time.Millisecond
}

// ClassifierStrategy selects how the classifier input is built from the
// inbound payload.
type ClassifierStrategy string

const (
	StrategyLastUser     ClassifierStrategy = "last_user"
	StrategyFullMessages ClassifierStrategy = "full_messages"
)

// ClassifierConfig configures the classifier client.
type ClassifierConfig struct {
	Enabled           bool
	BaseURL           string
	APIKey            string
	Model             string
	SystemPrompt      string
	Strategy          ClassifierStrategy
	MaxChars          int
	MaxTokens         int
	Temperature       float64
	TimeoutMs         int
	LogitBias         map[string]float64
	ForceStream       bool
	Warmup            bool
	WarmupDelayMs     int
	KeepAliveMs       int
	LoadingRetryMs    int
	LoadingMaxRetries int
}

func (c *ClassifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// CacheConfig configures the decision cache.
type CacheConfig struct {
	Enabled  bool
	RedisURL string
	TTLMs    int64
	Max      int
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host           string
	Port           int
	BodyLimitBytes int64
	DecisionHeader string
	UpstreamHeader string
	RouterAPIKey   string
	MetricsEnabled bool
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string
	ToFile bool
	Dir    string
}

// Config is the frozen, read-only snapshot handed to every request-serving
// component. A new Config is produced on every (re)load; nothing in this
// struct is ever mutated in place.
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Classifier ClassifierConfig
	Cache      CacheConfig
	Upstreams  map[Tier]*Upstream
}

// Upstream looks up a tier's descriptor, or nil if the tier is suppressed.
func (c *Config) Upstream(t Tier) *Upstream {
	return c.Upstreams[t]
}
