package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

func envStr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// FromEnv builds a Config from environment variables alone, before any
// upstreams.json overlay is applied.
func FromEnv() (*Config, error) {
	systemPrompt := envStr("CLASSIFIER_SYSTEM_PROMPT", defaultSystemPrompt)
	if strings.ContainsAny(systemPrompt, "\n\r") {
		return nil, fmt.Errorf("CLASSIFIER_SYSTEM_PROMPT must be a single line")
	}

	logitBias, err := parseLogitBias(os.Getenv("CLASSIFIER_LOGIT_BIAS"))
	if err != nil {
		return nil, fmt.Errorf("parse CLASSIFIER_LOGIT_BIAS: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           envStr("HOST", "0.0.0.0"),
			Port:           envInt("PORT", 8080),
			BodyLimitBytes: envInt64("BODY_LIMIT", 10<<20),
			DecisionHeader: envStr("DECISION_HEADER", "x-openrouter-decision"),
			UpstreamHeader: envStr("UPSTREAM_HEADER", "x-openrouter-upstream"),
			RouterAPIKey:   os.Getenv("ROUTER_API_KEY"),
			MetricsEnabled: envBool("METRICS_ENABLED", true),
		},
		Log: LogConfig{
			Level:  envStr("LOG_LEVEL", "info"),
			ToFile: envBool("LOG_TO_FILE", false),
			Dir:    envStr("LOG_DIR", "./logs"),
		},
		Classifier: ClassifierConfig{
			Enabled:           envBool("CLASSIFIER_ENABLED", false),
			BaseURL:           os.Getenv("CLASSIFIER_BASE_URL"),
			APIKey:            os.Getenv("CLASSIFIER_API_KEY"),
			Model:             os.Getenv("CLASSIFIER_MODEL"),
			SystemPrompt:      systemPrompt,
			Strategy:          ClassifierStrategy(envStr("CLASSIFIER_STRATEGY", string(StrategyLastUser))),
			MaxChars:          envInt("CLASSIFIER_MAX_CHARS", 8000),
			MaxTokens:         envInt("CLASSIFIER_MAX_TOKENS", 1),
			Temperature:       envFloat("CLASSIFIER_TEMPERATURE", 0),
			TimeoutMs:         envInt("CLASSIFIER_TIMEOUT_MS", 800),
			LogitBias:         logitBias,
			ForceStream:       envBool("CLASSIFIER_FORCE_STREAM", true),
			Warmup:            envBool("CLASSIFIER_WARMUP", false),
			WarmupDelayMs:     envInt("CLASSIFIER_WARMUP_DELAY_MS", 2000),
			KeepAliveMs:       envInt("CLASSIFIER_KEEP_ALIVE_MS", 0),
			LoadingRetryMs:    envInt("CLASSIFIER_LOADING_RETRY_MS", 1200),
			LoadingMaxRetries: envInt("CLASSIFIER_LOADING_MAX_RETRIES", 2),
		},
		Cache: CacheConfig{
			Enabled:  envBool("CACHE_ENABLED", true),
			RedisURL: os.Getenv("REDIS_URL"),
			TTLMs:    envInt64("CACHE_TTL_MS", 3_600_000),
			Max:      envInt("CACHE_MAX", 50_000),
		},
		Upstreams: map[Tier]*Upstream{
			TierCheap:    upstreamFromEnv(TierCheap, "CHEAP"),
			TierMedium:   upstreamFromEnv(TierMedium, "MEDIUM"),
			TierFrontier: upstreamFromEnv(TierFrontier, "FRONTIER"),
		},
	}

	return cfg, nil
}

const defaultSystemPrompt = "Classify the following request as 0 (cheap), 1 (medium), or 2 (frontier) based on its complexity."

func upstreamFromEnv(tier Tier, prefix string) *Upstream {
	baseURL := os.Getenv(prefix + "_BASE_URL")
	return &Upstream{
		Name:       envStr(prefix+"_NAME", string(tier)),
		Provider:   Provider(envStr(prefix+"_PROVIDER", string(ProviderAuto))),
		BaseURL:    baseURL,
		APIKey:     os.Getenv(prefix + "_API_KEY"),
		Model:      os.Getenv(prefix + "_MODEL"),
		Deployment: os.Getenv(prefix + "_DEPLOYMENT"),
		APIVersion: os.Getenv(prefix + "_API_VERSION"),
		Headers:    parseHeaders(os.Getenv(prefix + "_HEADERS")),
		TimeoutMs:  envInt(prefix+"_TIMEOUT_MS", defaultTimeoutMs(tier)),
	}
}

func defaultTimeoutMs(tier Tier) int {
	switch tier {
	case TierCheap:
		return 30_000
	case TierMedium:
		return 45_000
	default:
		return 60_000
	}
}

func parseHeaders(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func parseLogitBias(raw string) (map[string]float64, error) {
	if raw == "" {
		return nil, nil
	}
	var out map[string]float64
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
