package adapters

import (
	"testing"

	"github.com/pathemata-mathemata/openrouter/internal/config"
)

func TestResolve_ExplicitTag(t *testing.T) {
	cases := []struct {
		tag  config.Provider
		want string
	}{
		{config.ProviderAnthropic, "anthropic"},
		{config.ProviderGemini, "gemini"},
		{config.ProviderCohere, "cohere"},
		{config.ProviderAzureOpenAI, "azure_openai"},
		{config.ProviderOpenAI, "openai"},
		{config.ProviderOpenRouter, "openai"},
		{config.ProviderMistral, "openai"},
	}
	for _, c := range cases {
		adapter, err := Resolve(&config.Upstream{Provider: c.tag})
		if err != nil {
			t.Fatalf("tag %s: unexpected error: %v", c.tag, err)
		}
		if adapter.Name() != c.want {
			t.Errorf("tag %s: expected adapter %s, got %s", c.tag, c.want, adapter.Name())
		}
	}
}

func TestResolve_UnknownExplicitTagIsUnsupported(t *testing.T) {
	_, err := Resolve(&config.Upstream{Provider: config.Provider("bedrock")})
	if err == nil {
		t.Fatal("expected error for unsupported provider tag")
	}
	if _, ok := err.(*ErrProviderNotSupported); !ok {
		t.Fatalf("expected ErrProviderNotSupported, got %T", err)
	}
}

func TestDetectProvider_ByHost(t *testing.T) {
	cases := []struct {
		baseURL string
		want    config.Provider
	}{
		{"https://api.anthropic.com/v1", config.ProviderAnthropic},
		{"https://generativelanguage.googleapis.com/v1beta", config.ProviderGemini},
		{"https://api.cohere.ai/v2", config.ProviderCohere},
		{"https://api.cohere.com/v2", config.ProviderCohere},
		{"https://my-resource.openai.azure.com", config.ProviderAzureOpenAI},
		{"https://api.mistral.ai/v1", config.ProviderMistral},
		{"https://api.groq.com/openai/v1", config.ProviderGroq},
		{"https://api.together.xyz/v1", config.ProviderTogether},
		{"https://api.perplexity.ai", config.ProviderPerplexity},
		{"https://openrouter.ai/api/v1", config.ProviderOpenRouter},
		{"https://api.openai.com/v1", config.ProviderOpenAI},
	}
	for _, c := range cases {
		got := detectProvider(&config.Upstream{BaseURL: c.baseURL})
		if got != c.want {
			t.Errorf("host %s: expected %s, got %s", c.baseURL, c.want, got)
		}
	}
}

// A Cohere base URL may use either api.cohere.ai or api.cohere.com. Both
// must route to the Cohere adapter.
func TestDetectProvider_CohereAcceptsBothHosts(t *testing.T) {
	for _, host := range []string{"https://api.cohere.ai/v2/chat", "https://api.cohere.com/v2/chat"} {
		adapter, err := Resolve(&config.Upstream{Provider: config.ProviderAuto, BaseURL: host})
		if err != nil {
			t.Fatalf("host %s: unexpected error: %v", host, err)
		}
		if adapter.Name() != "cohere" {
			t.Errorf("host %s: expected cohere adapter, got %s", host, adapter.Name())
		}
	}
}

func TestDetectProvider_ByAPIKeyPrefix(t *testing.T) {
	cases := []struct {
		key  string
		want config.Provider
	}{
		{"sk-ant-abc123", config.ProviderAnthropic},
		{"AIzaSyExampleKey", config.ProviderGemini},
		{"my-cohere-trial-key", config.ProviderCohere},
	}
	for _, c := range cases {
		got := detectProvider(&config.Upstream{APIKey: c.key})
		if got != c.want {
			t.Errorf("key %s: expected %s, got %s", c.key, c.want, got)
		}
	}
}

func TestDetectProvider_FallsBackToOpenAICompatible(t *testing.T) {
	got := detectProvider(&config.Upstream{BaseURL: "https://llm.internal.example.com/v1", APIKey: "local-key"})
	if got != config.ProviderOpenAICompatible {
		t.Errorf("expected openai_compatible fallback, got %s", got)
	}
	adapter, err := Resolve(&config.Upstream{Provider: config.ProviderAuto, BaseURL: "https://llm.internal.example.com/v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adapter.Name() != "openai" {
		t.Errorf("expected openai passthrough adapter, got %s", adapter.Name())
	}
}
