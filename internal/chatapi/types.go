// Package chatapi defines the canonical OpenAI chat-completion wire shape
// that every provider adapter translates to and from.
package chatapi

import (
	"encoding/json"

	"github.com/pathemata-mathemata/openrouter/internal/fingerprint"
)

// Message is one turn of a chat-completion conversation. Content may be a
// bare string or a heterogeneous array of content parts; Text() flattens
// either shape using the shared coercion rule.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
	Name    string      `json:"name,omitempty"`
}

// Text returns the flattened plain-text form of the message content.
func (m Message) Text() string {
	return fingerprint.CoerceContent(m.Content)
}

// Request is the canonical inbound chat-completion payload.
type Request struct {
	Model               string          `json:"model,omitempty"`
	Messages            []Message       `json:"messages"`
	Stream              bool            `json:"stream,omitempty"`
	Temperature         *float64        `json:"temperature,omitempty"`
	TopP                *float64        `json:"top_p,omitempty"`
	MaxTokens           *int            `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int            `json:"max_completion_tokens,omitempty"`
	Stop                interface{}     `json:"stop,omitempty"`
	Tools               json.RawMessage `json:"tools,omitempty"`
	ToolChoice          json.RawMessage `json:"tool_choice,omitempty"`
	ResponseFormat      json.RawMessage `json:"response_format,omitempty"`
	LogitBias           map[string]float64 `json:"logit_bias,omitempty"`
}

// EffectiveMaxTokens returns max_tokens, falling back to
// max_completion_tokens, or nil if neither is set.
func (r *Request) EffectiveMaxTokens() *int {
	if r.MaxTokens != nil {
		return r.MaxTokens
	}
	return r.MaxCompletionTokens
}

// StopSequences normalizes the Stop field (string or []string) to a slice.
func (r *Request) StopSequences() []string {
	switch v := r.Stop.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// Usage is the OpenAI-shaped usage object returned on buffered responses.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// Choice is a single completion choice in a buffered chat-completion response.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Response is the canonical buffered chat-completion response shape.
type Response struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// StreamDelta carries the incremental content of one streaming chunk.
type StreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// StreamChoice is a single choice within a streaming chunk.
type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

// StreamChunk is the canonical OpenAI chat-completion.chunk SSE payload.
type StreamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
}
