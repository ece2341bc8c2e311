// Package adapters translates between the canonical OpenAI chat-completion
// shape and each upstream's wire dialect, relaying the upstream's reply back
// to the client as uniform OpenAI-shaped JSON or SSE chunks.
package adapters

import (
	"context"
	"net/http"

	"github.com/pathemata-mathemata/openrouter/internal/chatapi"
	"github.com/pathemata-mathemata/openrouter/internal/config"
	"github.com/pathemata-mathemata/openrouter/internal/usage"
)

// Kind distinguishes how a non-OK upstream response is surfaced to the
// client: a passthrough adapter relays the upstream body and status
// verbatim, a translating adapter wraps it as {"error":"upstream_error"}.
type Kind int

const (
	KindPassthrough Kind = iota
	KindTranslating
)

// StreamTransformer turns one upstream SSE event payload into an
// OpenAI-shaped chunk. chunk == nil means skip (emit nothing for this
// event). terminal == true tells the driver to stop after writing chunk
// (if any) and emit the closing [DONE] frame.
type StreamTransformer func(data []byte) (chunk []byte, u usage.RawUsage, hasUsage bool, terminal bool)

// Adapter owns one upstream dialect's request/response translation. All
// adapters share this contract; the dispatch driver in dispatch.go owns
// header-setting, SSE relaying, and usage recording uniformly across them.
type Adapter interface {
	Name() string
	Kind() Kind

	// BuildRequest constructs the outbound HTTP request for req against upstream.
	BuildRequest(ctx context.Context, req *chatapi.Request, rawBody []byte, upstream *config.Upstream) (*http.Request, error)

	// Buffered translates a non-streaming upstream response body into the
	// bytes relayed to the client, plus any usage it carried.
	Buffered(body []byte) (relayed []byte, u usage.RawUsage, hasUsage bool, err error)

	// StreamTransform returns the per-SSE-event transformer for this adapter.
	StreamTransform() StreamTransformer
}

// SetDecisionHeaders sets the two router decision headers. Adapters that
// translate the response shape call this before writing the body;
// dispatch.go calls it uniformly on their behalf.
func SetDecisionHeaders(w http.ResponseWriter, decisionHeader, upstreamHeader string, decision int, upstreamName string) {
	w.Header().Set(decisionHeader, decisionDigit(decision))
	w.Header().Set(upstreamHeader, upstreamName)
}

func decisionDigit(decision int) string {
	switch decision {
	case 0:
		return "0"
	case 1:
		return "1"
	default:
		return "2"
	}
}
