package adapters

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pathemata-mathemata/openrouter/internal/chatapi"
	"github.com/pathemata-mathemata/openrouter/internal/config"
	"github.com/pathemata-mathemata/openrouter/internal/usage"
)

// UpstreamError is returned by Dispatch when the upstream call fails at the
// transport level or (for a translating adapter) returns a non-OK status.
// The routing layer renders it as {"error":"upstream_error","details":...}.
type UpstreamError struct {
	StatusCode int
	Details    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream_error (%d): %s", e.StatusCode, e.Details)
}

// Dispatch sends req to upstream through adapter and relays the reply to w,
// either buffered or as SSE, recording usage into agg exactly once. The call
// is bounded by upstream.Timeout(); a timed-out call surfaces as a 502
// upstream_error.
func Dispatch(ctx context.Context, client *http.Client, w http.ResponseWriter, req *chatapi.Request, rawBody []byte, upstream *config.Upstream, adapter Adapter, decisionHeader, upstreamHeader string, decision int, agg *usage.Aggregator, route usage.Route) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, upstream.Timeout())
	defer cancel()

	httpReq, err := adapter.BuildRequest(timeoutCtx, req, rawBody, upstream)
	if err != nil {
		return fmt.Errorf("build upstream request: %w", err)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return &UpstreamError{StatusCode: http.StatusBadGateway, Details: "upstream timed out"}
		}
		return &UpstreamError{StatusCode: http.StatusBadGateway, Details: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if adapter.Kind() == KindPassthrough {
			SetDecisionHeaders(w, decisionHeader, upstreamHeader, decision, upstream.Name)
			if ct := resp.Header.Get("Content-Type"); ct != "" {
				w.Header().Set("Content-Type", ct)
			}
			w.WriteHeader(resp.StatusCode)
			w.Write(body)
			agg.RecordUsage(usage.Record{Route: route, Upstream: upstream.Name})
			return nil
		}
		return &UpstreamError{StatusCode: resp.StatusCode, Details: string(body)}
	}

	if req.Stream {
		return dispatchStream(w, resp, adapter, decisionHeader, upstreamHeader, decision, upstream, agg, route)
	}
	return dispatchBuffered(w, resp, adapter, decisionHeader, upstreamHeader, decision, upstream, agg, route)
}

func dispatchBuffered(w http.ResponseWriter, resp *http.Response, adapter Adapter, decisionHeader, upstreamHeader string, decision int, upstream *config.Upstream, agg *usage.Aggregator, route usage.Route) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UpstreamError{StatusCode: http.StatusBadGateway, Details: err.Error()}
	}

	relayed, u, hasUsage, err := adapter.Buffered(body)
	if err != nil {
		return &UpstreamError{StatusCode: http.StatusBadGateway, Details: err.Error()}
	}

	SetDecisionHeaders(w, decisionHeader, upstreamHeader, decision, upstream.Name)
	contentType := "application/json"
	if adapter.Kind() == KindPassthrough {
		if ct := resp.Header.Get("Content-Type"); ct != "" {
			contentType = ct
		}
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(relayed)

	rec := usage.Record{Route: route, Upstream: upstream.Name}
	if hasUsage {
		u.Present = true
		rec.Usage = u
	}
	agg.RecordUsage(rec)
	return nil
}

func dispatchStream(w http.ResponseWriter, resp *http.Response, adapter Adapter, decisionHeader, upstreamHeader string, decision int, upstream *config.Upstream, agg *usage.Aggregator, route usage.Route) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.New("streaming not supported by response writer")
	}

	SetDecisionHeaders(w, decisionHeader, upstreamHeader, decision, upstream.Name)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	transform := adapter.StreamTransform()
	rec := usage.Record{Route: route, Upstream: upstream.Name}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		chunk, u, hasUsage, terminal := transform([]byte(data))
		if hasUsage {
			u.Present = true
			rec.Usage = u
		}
		if chunk != nil {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
			flusher.Flush()
		}
		if terminal {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Error("error reading upstream stream", "error", err, "provider", adapter.Name())
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()

	agg.RecordUsage(rec)
	return nil
}
