package adapters

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pathemata-mathemata/openrouter/internal/config"
)

// ErrProviderNotSupported is returned when an explicit provider tag has no
// matching adapter. Host and API-key detection run only for an empty or
// "auto" tag, never for an explicit one.
type ErrProviderNotSupported struct {
	Tag config.Provider
}

func (e *ErrProviderNotSupported) Error() string {
	return fmt.Sprintf("provider_not_supported: %s", e.Tag)
}

// Resolve picks the adapter for an upstream per the provider tag, falling
// back to host- and API-key-based detection when the tag is empty or "auto".
func Resolve(upstream *config.Upstream) (Adapter, error) {
	tag := upstream.Provider
	if tag == "" || tag == config.ProviderAuto {
		tag = detectProvider(upstream)
	}

	switch tag {
	case config.ProviderAnthropic:
		return NewAnthropicAdapter(), nil
	case config.ProviderGemini:
		return NewGeminiAdapter(), nil
	case config.ProviderCohere:
		return NewCohereAdapter(), nil
	case config.ProviderAzureOpenAI:
		return NewAzureAdapter(), nil
	case config.ProviderOpenAICompatible, config.ProviderOpenRouter, config.ProviderOpenAI,
		config.ProviderMistral, config.ProviderGroq, config.ProviderTogether, config.ProviderPerplexity:
		return NewOpenAIAdapter(), nil
	case "":
		return NewOpenAIAdapter(), nil
	default:
		return nil, &ErrProviderNotSupported{Tag: tag}
	}
}

// detectProvider infers a provider tag from the upstream's base URL host,
// and as a last resort from the API key's prefix.
//
// The host check intentionally accepts both api.cohere.ai and
// api.cohere.com, so a Cohere base URL on either host is detected.
func detectProvider(upstream *config.Upstream) config.Provider {
	host := hostOf(upstream.BaseURL)

	switch {
	case strings.Contains(host, "anthropic.com"):
		return config.ProviderAnthropic
	case strings.Contains(host, "generativelanguage.googleapis.com"):
		return config.ProviderGemini
	case strings.Contains(host, "api.cohere.ai"), strings.Contains(host, "api.cohere.com"):
		return config.ProviderCohere
	case strings.Contains(host, "openai.azure.com"):
		return config.ProviderAzureOpenAI
	case strings.Contains(host, "api.mistral.ai"):
		return config.ProviderMistral
	case strings.Contains(host, "api.groq.com"):
		return config.ProviderGroq
	case strings.Contains(host, "api.together.xyz"):
		return config.ProviderTogether
	case strings.Contains(host, "api.perplexity.ai"):
		return config.ProviderPerplexity
	case strings.Contains(host, "openrouter.ai"):
		return config.ProviderOpenRouter
	case strings.Contains(host, "api.openai.com"):
		return config.ProviderOpenAI
	}

	key := upstream.APIKey
	switch {
	case strings.HasPrefix(key, "sk-ant-"):
		return config.ProviderAnthropic
	case strings.HasPrefix(key, "AIza"):
		return config.ProviderGemini
	case strings.Contains(strings.ToLower(key), "cohere"):
		return config.ProviderCohere
	}

	return config.ProviderOpenAICompatible
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
