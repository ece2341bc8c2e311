package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pathemata-mathemata/openrouter/internal/cache"
	"github.com/pathemata-mathemata/openrouter/internal/chatapi"
	"github.com/pathemata-mathemata/openrouter/internal/classify"
	"github.com/pathemata-mathemata/openrouter/internal/config"
	"github.com/pathemata-mathemata/openrouter/internal/usage"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CLASSIFIER_ENABLED", "CLASSIFIER_BASE_URL", "CHEAP_BASE_URL", "MEDIUM_BASE_URL",
		"FRONTIER_BASE_URL", "ROUTER_API_KEY", "UPSTREAMS_FILE", "UPSTREAMS_JSON",
	} {
		os.Unsetenv(k)
	}
}

func newTestHandler(t *testing.T, frontierURL string) *Handler {
	t.Helper()
	clearEnv(t)
	t.Setenv("FRONTIER_BASE_URL", frontierURL)
	t.Setenv("ROUTER_API_KEY", "test-key")

	loader := config.NewLoader(nil)
	if err := loader.Load(); err != nil {
		t.Fatalf("loader.Load: %v", err)
	}

	agg := usage.New(usage.NewMetricsWithRegisterer(prometheus.NewRegistry()))
	classifier := classify.NewClient(loader.Config().Classifier)
	return NewHandler(loader, cache.NewNoop(), classifier, agg, http.DefaultClient)
}

func TestChatCompletions_RequiresAuth(t *testing.T) {
	h := newTestHandler(t, "https://frontier.example.com")

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader([]byte(`{"messages":[]}`)))
	w := httptest.NewRecorder()
	h.authMiddleware(http.HandlerFunc(h.ChatCompletions)).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestChatCompletions_RejectsMissingMessages(t *testing.T) {
	h := newTestHandler(t, "https://frontier.example.com")

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader([]byte(`{"messages":[]}`)))
	req.Header.Set("Authorization", "Bearer test-key")
	w := httptest.NewRecorder()
	h.ChatCompletions(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestChatCompletions_ClassifierDisabledRoutesToFrontier(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream.URL)

	body, _ := json.Marshal(map[string]interface{}{
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer test-key")
	w := httptest.NewRecorder()
	h.ChatCompletions(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("x-openrouter-decision"); got != "2" {
		t.Fatalf("expected decision header 2, got %q", got)
	}
}

func TestHealth_ReportsUpstreams(t *testing.T) {
	h := newTestHandler(t, "https://frontier.example.com")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Authorization", "Bearer test-key")
	w := httptest.NewRecorder()
	h.Health(w, req)

	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	found := false
	for _, u := range resp.Upstreams {
		if u.Tier == "frontier" && u.BaseURL == "https://frontier.example.com" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected frontier upstream in health response, got %+v", resp.Upstreams)
	}
}

func TestValidateUpstreamTarget_MissingDeployment(t *testing.T) {
	req := &chatapi.Request{Messages: []chatapi.Message{{Role: "user", Content: "hi"}}}
	upstream := &config.Upstream{Provider: config.ProviderAzureOpenAI}

	if got := validateUpstreamTarget(req, upstream); got != missingDeployment {
		t.Fatalf("expected missingDeployment, got %v", got)
	}
}

func TestValidateUpstreamTarget_MissingModel(t *testing.T) {
	req := &chatapi.Request{Messages: []chatapi.Message{{Role: "user", Content: "hi"}}}
	upstream := &config.Upstream{Provider: config.ProviderAnthropic}

	if got := validateUpstreamTarget(req, upstream); got != missingModel {
		t.Fatalf("expected missingModel, got %v", got)
	}
}

func TestValidateUpstreamTarget_OKWhenModelSetOnUpstream(t *testing.T) {
	req := &chatapi.Request{Messages: []chatapi.Message{{Role: "user", Content: "hi"}}}
	upstream := &config.Upstream{Provider: config.ProviderCohere, Model: "command-r"}

	if got := validateUpstreamTarget(req, upstream); got != targetOK {
		t.Fatalf("expected targetOK, got %v", got)
	}
}

func TestUsage_ReturnsSnapshot(t *testing.T) {
	h := newTestHandler(t, "https://frontier.example.com")

	req := httptest.NewRequest(http.MethodGet, "/usage", nil)
	w := httptest.NewRecorder()
	h.Usage(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
