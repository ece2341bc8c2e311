package config

import (
	"os"
	"testing"
)

func clearRouterEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"CLASSIFIER_ENABLED", "CLASSIFIER_BASE_URL", "CLASSIFIER_MODEL", "CLASSIFIER_SYSTEM_PROMPT",
		"CHEAP_BASE_URL", "CHEAP_MODEL", "MEDIUM_BASE_URL", "FRONTIER_BASE_URL",
		"UPSTREAMS_FILE", "UPSTREAMS_JSON",
	}
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestValidate_RequiresFrontierBaseURL(t *testing.T) {
	clearRouterEnv(t)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for missing frontier.baseUrl")
	}
}

func TestValidate_RequiresCheapAndMediumWhenClassifierEnabled(t *testing.T) {
	clearRouterEnv(t)
	t.Setenv("CLASSIFIER_ENABLED", "true")
	t.Setenv("FRONTIER_BASE_URL", "https://frontier.example.com")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for missing cheap/medium base URLs")
	}
}

func TestValidate_CoLocationForcesCheapModel(t *testing.T) {
	clearRouterEnv(t)
	t.Setenv("CLASSIFIER_ENABLED", "true")
	t.Setenv("CLASSIFIER_BASE_URL", "http://localhost:8000/")
	t.Setenv("CLASSIFIER_MODEL", "qwen-0.5b")
	t.Setenv("CHEAP_BASE_URL", "http://localhost:8000")
	t.Setenv("CHEAP_MODEL", "some-other-model")
	t.Setenv("MEDIUM_BASE_URL", "https://medium.example.com")
	t.Setenv("FRONTIER_BASE_URL", "https://frontier.example.com")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Upstreams[TierCheap].Model != "qwen-0.5b" {
		t.Fatalf("expected cheap model forced to classifier model, got %q", cfg.Upstreams[TierCheap].Model)
	}
}

func TestValidate_NoCoLocationWhenURLsDiffer(t *testing.T) {
	clearRouterEnv(t)
	t.Setenv("CLASSIFIER_ENABLED", "true")
	t.Setenv("CLASSIFIER_BASE_URL", "http://localhost:8000")
	t.Setenv("CLASSIFIER_MODEL", "qwen-0.5b")
	t.Setenv("CHEAP_BASE_URL", "https://cheap.example.com")
	t.Setenv("CHEAP_MODEL", "keep-me")
	t.Setenv("MEDIUM_BASE_URL", "https://medium.example.com")
	t.Setenv("FRONTIER_BASE_URL", "https://frontier.example.com")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Upstreams[TierCheap].Model != "keep-me" {
		t.Fatalf("expected cheap model untouched, got %q", cfg.Upstreams[TierCheap].Model)
	}
}

func TestFromEnv_RejectsMultilineSystemPrompt(t *testing.T) {
	clearRouterEnv(t)
	t.Setenv("CLASSIFIER_SYSTEM_PROMPT", "line one\nline two")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error for multi-line system prompt")
	}
}

func TestUpstreamsOverlay_ExplicitNullSuppressesTier(t *testing.T) {
	clearRouterEnv(t)
	t.Setenv("FRONTIER_BASE_URL", "https://frontier.example.com")
	t.Setenv("MEDIUM_BASE_URL", "https://medium.example.com")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}

	dir := t.TempDir()
	path := dir + "/upstreams.json"
	if err := os.WriteFile(path, []byte(`{"medium": null}`), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("UPSTREAMS_FILE", path)

	if err := LoadUpstreamsOverlay(cfg); err != nil {
		t.Fatalf("LoadUpstreamsOverlay: %v", err)
	}
	if _, ok := cfg.Upstreams[TierMedium]; ok {
		t.Fatalf("expected medium tier suppressed by explicit null")
	}
	if _, ok := cfg.Upstreams[TierCheap]; !ok {
		t.Fatalf("expected cheap tier to survive (absent key, not overlaid)")
	}
}

func TestUpstreamsOverlay_MergesPartialFields(t *testing.T) {
	clearRouterEnv(t)
	t.Setenv("FRONTIER_BASE_URL", "https://frontier.example.com")
	t.Setenv("CHEAP_BASE_URL", "https://cheap.example.com")
	t.Setenv("CHEAP_MODEL", "original-model")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}

	overlay := []byte(`{"cheap": {"model": "overridden-model"}}`)
	t.Setenv("UPSTREAMS_JSON", string(overlay))

	if err := LoadUpstreamsOverlay(cfg); err != nil {
		t.Fatalf("LoadUpstreamsOverlay: %v", err)
	}
	if cfg.Upstreams[TierCheap].Model != "overridden-model" {
		t.Fatalf("expected model overridden, got %q", cfg.Upstreams[TierCheap].Model)
	}
	if cfg.Upstreams[TierCheap].BaseURL != "https://cheap.example.com" {
		t.Fatalf("expected baseURL inherited from env, got %q", cfg.Upstreams[TierCheap].BaseURL)
	}
}
