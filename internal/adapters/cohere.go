package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pathemata-mathemata/openrouter/internal/chatapi"
	"github.com/pathemata-mathemata/openrouter/internal/config"
	"github.com/pathemata-mathemata/openrouter/internal/usage"
)

// CohereAdapter translates to/from the Cohere v2 chat API.
type CohereAdapter struct{}

func NewCohereAdapter() *CohereAdapter { return &CohereAdapter{} }

func (a *CohereAdapter) Name() string { return "cohere" }

func (a *CohereAdapter) Kind() Kind { return KindTranslating }

type cohereMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type cohereRequestBody struct {
	Model       string          `json:"model"`
	Messages    []cohereMessage `json:"messages"`
	Stream      bool            `json:"stream,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
}

func cohereRole(role string) string {
	switch role {
	case "system", "user", "assistant", "tool":
		return role
	default:
		return "user"
	}
}

func (a *CohereAdapter) BuildRequest(ctx context.Context, req *chatapi.Request, rawBody []byte, upstream *config.Upstream) (*http.Request, error) {
	messages := make([]cohereMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, cohereMessage{Role: cohereRole(m.Role), Content: m.Text()})
	}

	model := req.Model
	if upstream.Model != "" {
		model = upstream.Model
	}

	body := cohereRequestBody{
		Model:       model,
		Messages:    messages,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		MaxTokens:   req.EffectiveMaxTokens(),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal cohere request: %w", err)
	}

	url := cohereChatURL(upstream.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if upstream.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+upstream.APIKey)
	}
	setExtraHeaders(httpReq, upstream.Headers)
	return httpReq, nil
}

// cohereChatURL preserves the configured base URL's path if it already
// targets a chat endpoint, otherwise appends /v2/chat.
func cohereChatURL(baseURL string) string {
	trimmed := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(trimmed, "/v2/chat") || strings.HasSuffix(trimmed, "/chat") {
		return trimmed
	}
	return trimmed + "/v2/chat"
}

type cohereTokens struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type cohereMeta struct {
	Tokens cohereTokens `json:"tokens"`
}

type cohereResponseBody struct {
	Message struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
	FinishReason string      `json:"finish_reason"`
	Meta         *cohereMeta `json:"meta,omitempty"`
	Response     *struct {
		Meta *cohereMeta `json:"meta,omitempty"`
	} `json:"response,omitempty"`
}

func (r *cohereResponseBody) tokens() (cohereTokens, bool) {
	if r.Meta != nil {
		return r.Meta.Tokens, true
	}
	if r.Response != nil && r.Response.Meta != nil {
		return r.Response.Meta.Tokens, true
	}
	return cohereTokens{}, false
}

func (a *CohereAdapter) Buffered(body []byte) ([]byte, usage.RawUsage, bool, error) {
	var resp cohereResponseBody
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, usage.RawUsage{}, false, fmt.Errorf("unmarshal cohere response: %w", err)
	}

	var text strings.Builder
	for _, c := range resp.Message.Content {
		text.WriteString(c.Text)
	}

	finish := "stop"
	if resp.FinishReason != "" {
		finish = strings.ToLower(resp.FinishReason)
	}

	out := chatapi.Response{
		Object: "chat.completion",
		Choices: []chatapi.Choice{{
			Index:        0,
			Message:      chatapi.Message{Role: "assistant", Content: text.String()},
			FinishReason: finish,
		}},
	}

	tok, hasUsage := resp.tokens()
	u := usage.RawUsage{}
	if hasUsage {
		u = normalizeCohereTokens(tok)
		out.Usage = &chatapi.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, usage.RawUsage{}, false, err
	}
	return data, u, hasUsage, nil
}

func normalizeCohereTokens(t cohereTokens) usage.RawUsage {
	return usage.NormalizeAnthropic(t.InputTokens, t.OutputTokens)
}

func (a *CohereAdapter) StreamTransform() StreamTransformer {
	return func(data []byte) ([]byte, usage.RawUsage, bool, bool) {
		var event struct {
			Type  string `json:"type"`
			Delta struct {
				Message struct {
					Content struct {
						Text string `json:"text"`
					} `json:"content"`
				} `json:"message"`
			} `json:"delta"`
			Meta     *cohereMeta `json:"meta,omitempty"`
			Response *struct {
				Meta *cohereMeta `json:"meta,omitempty"`
			} `json:"response,omitempty"`
		}
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, usage.RawUsage{}, false, false
		}

		switch event.Type {
		case "content-delta":
			chunk := chatapi.StreamChunk{
				Object: "chat.completion.chunk",
				Choices: []chatapi.StreamChoice{{
					Index: 0,
					Delta: chatapi.StreamDelta{Content: event.Delta.Message.Content.Text},
				}},
			}
			out, err := json.Marshal(chunk)
			if err != nil {
				return nil, usage.RawUsage{}, false, false
			}
			return out, usage.RawUsage{}, false, false

		case "message-end":
			var tok cohereTokens
			hasUsage := false
			if event.Meta != nil {
				tok, hasUsage = event.Meta.Tokens, true
			} else if event.Response != nil && event.Response.Meta != nil {
				tok, hasUsage = event.Response.Meta.Tokens, true
			}
			finish := "stop"
			chunk := chatapi.StreamChunk{
				Object: "chat.completion.chunk",
				Choices: []chatapi.StreamChoice{{
					Index:        0,
					FinishReason: &finish,
				}},
			}
			out, err := json.Marshal(chunk)
			if err != nil {
				return nil, usage.RawUsage{}, false, true
			}
			if hasUsage {
				return out, normalizeCohereTokens(tok), true, true
			}
			return out, usage.RawUsage{}, false, true

		default:
			return nil, usage.RawUsage{}, false, false
		}
	}
}
