package adapters

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pathemata-mathemata/openrouter/internal/chatapi"
	"github.com/pathemata-mathemata/openrouter/internal/config"
	"github.com/pathemata-mathemata/openrouter/internal/usage"
)

func newTestAggregator() *usage.Aggregator {
	return usage.New(usage.NewMetricsWithRegisterer(prometheus.NewRegistry()))
}

// TestDispatch_StreamShape covers invariant 7: at least one content-bearing
// chunk, exactly one terminator chunk with finish_reason "stop", and exactly
// one data: [DONE] line.
func TestDispatch_StreamShape(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		events := []string{
			`{"type":"message_start","message":{"usage":{"input_tokens":5,"output_tokens":0}}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" world"}}`,
			`{"type":"message_stop"}`,
		}
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
			flusher.Flush()
		}
	}))
	defer upstream.Close()

	up := &config.Upstream{Name: "claude", Provider: config.ProviderAnthropic, BaseURL: upstream.URL, TimeoutMs: 5000}
	req := &chatapi.Request{Stream: true, Messages: []chatapi.Message{{Role: "user", Content: "hi"}}}
	agg := newTestAggregator()

	w := httptest.NewRecorder()
	err := Dispatch(context.Background(), http.DefaultClient, w, req, []byte(`{}`), up, NewAnthropicAdapter(), "x-openrouter-decision", "x-openrouter-upstream", 2, agg, usage.RouteFrontier)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	body := w.Body.String()
	contentChunks := strings.Count(body, `"content":"Hello"`) + strings.Count(body, `"content":" world"`)
	if contentChunks != 2 {
		t.Fatalf("expected 2 content-bearing chunks, got %d in body: %s", contentChunks, body)
	}
	if n := strings.Count(body, `"finish_reason":"stop"`); n != 1 {
		t.Fatalf("expected exactly one terminator chunk, got %d", n)
	}
	if n := strings.Count(body, "data: [DONE]"); n != 1 {
		t.Fatalf("expected exactly one [DONE] line, got %d", n)
	}

	snap := agg.SnapshotUsage()
	b := snap.Buckets[usage.RouteFrontier]
	if b.PromptTokens != 5 || b.CompletionTokens != 0 {
		t.Fatalf("expected usage bucket to increment by {5,0}, got prompt=%d completion=%d", b.PromptTokens, b.CompletionTokens)
	}
}

// TestDispatch_GeminiStreamFoldsFinishReasonIntoLastChunk pins Gemini's
// current (accepted) streaming behavior: finish_reason rides along on the
// last content-bearing chunk instead of its own empty-delta terminator, and
// the driver's own [DONE] still closes the stream exactly once.
func TestDispatch_GeminiStreamFoldsFinishReasonIntoLastChunk(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		events := []string{
			`{"candidates":[{"content":{"parts":[{"text":"Hello"}]}}]}`,
			`{"candidates":[{"content":{"parts":[{"text":" world"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":2,"totalTokenCount":7}}`,
		}
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
			flusher.Flush()
		}
	}))
	defer upstream.Close()

	up := &config.Upstream{Name: "gemini", Provider: config.ProviderGemini, BaseURL: upstream.URL, TimeoutMs: 5000}
	req := &chatapi.Request{Stream: true, Model: "gemini-pro", Messages: []chatapi.Message{{Role: "user", Content: "hi"}}}
	agg := newTestAggregator()

	w := httptest.NewRecorder()
	err := Dispatch(context.Background(), http.DefaultClient, w, req, []byte(`{}`), up, NewGeminiAdapter(), "x-openrouter-decision", "x-openrouter-upstream", 2, agg, usage.RouteFrontier)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	body := w.Body.String()
	if n := strings.Count(body, `"finish_reason":"stop"`); n != 1 {
		t.Fatalf("expected finish_reason to appear exactly once (folded into the last chunk), got %d in: %s", n, body)
	}
	if !strings.Contains(body, `"content":" world"`) {
		t.Fatalf("expected the finish_reason-bearing chunk to still carry its content, got: %s", body)
	}
	if n := strings.Count(body, "data: [DONE]"); n != 1 {
		t.Fatalf("expected exactly one [DONE] line, got %d", n)
	}
	if n := strings.Count(body, `"delta":{}`); n != 0 {
		t.Fatalf("Gemini does not emit a separate empty-delta terminator chunk; got %d", n)
	}
}

// TestDispatch_UpstreamTimeoutSurfacesAs502 covers the upstream.timeoutMs
// enforcement: a call that outlasts the configured timeout must fail as a
// 502 upstream_error rather than hang on the client context.
func TestDispatch_UpstreamTimeoutSurfacesAs502(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"too slow"},"finish_reason":"stop"}]}`))
	}))
	defer upstream.Close()

	up := &config.Upstream{Name: "slow", Provider: config.ProviderOpenAICompatible, BaseURL: upstream.URL, TimeoutMs: 10}
	req := &chatapi.Request{Messages: []chatapi.Message{{Role: "user", Content: "hi"}}}
	agg := newTestAggregator()

	w := httptest.NewRecorder()
	err := Dispatch(context.Background(), http.DefaultClient, w, req, []byte(`{}`), up, NewOpenAIAdapter(), "x-openrouter-decision", "x-openrouter-upstream", 2, agg, usage.RouteFrontier)
	if err == nil {
		t.Fatal("expected a timeout error, got nil")
	}
	upstreamErr, ok := err.(*UpstreamError)
	if !ok {
		t.Fatalf("expected *UpstreamError, got %T: %v", err, err)
	}
	if upstreamErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", upstreamErr.StatusCode)
	}
}

// TestDispatch_RespectsLongerTimeoutWhenUpstreamIsFastEnough guards against
// over-eager timeouts: a call that completes within upstream.timeoutMs must
// succeed normally.
func TestDispatch_RespectsLongerTimeoutWhenUpstreamIsFastEnough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"fast"},"finish_reason":"stop"}]}`))
	}))
	defer upstream.Close()

	up := &config.Upstream{Name: "fast", Provider: config.ProviderOpenAICompatible, BaseURL: upstream.URL, TimeoutMs: 5000}
	req := &chatapi.Request{Messages: []chatapi.Message{{Role: "user", Content: "hi"}}}
	agg := newTestAggregator()

	w := httptest.NewRecorder()
	err := Dispatch(context.Background(), http.DefaultClient, w, req, []byte(`{}`), up, NewOpenAIAdapter(), "x-openrouter-decision", "x-openrouter-upstream", 2, agg, usage.RouteFrontier)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
