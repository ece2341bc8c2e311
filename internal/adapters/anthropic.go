package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/pathemata-mathemata/openrouter/internal/chatapi"
	"github.com/pathemata-mathemata/openrouter/internal/config"
	"github.com/pathemata-mathemata/openrouter/internal/usage"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicAdapter translates to/from the Anthropic Messages API.
type AnthropicAdapter struct{}

func NewAnthropicAdapter() *AnthropicAdapter { return &AnthropicAdapter{} }

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) Kind() Kind { return KindTranslating }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequestBody struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Stream      bool               `json:"stream,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	Stop        []string           `json:"stop_sequences,omitempty"`
}

func (a *AnthropicAdapter) BuildRequest(ctx context.Context, req *chatapi.Request, rawBody []byte, upstream *config.Upstream) (*http.Request, error) {
	var systemParts []string
	var messages []anthropicMessage
	for _, m := range req.Messages {
		if m.Role == "system" {
			systemParts = append(systemParts, m.Text())
			continue
		}
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Text()})
	}

	maxTokens := defaultAnthropicMaxTokens
	if n, err := strconv.Atoi(os.Getenv("ANTHROPIC_MAX_TOKENS")); err == nil && n > 0 {
		maxTokens = n
	}
	if req.EffectiveMaxTokens() != nil {
		maxTokens = *req.EffectiveMaxTokens()
	}

	model := req.Model
	if upstream.Model != "" {
		model = upstream.Model
	}

	body := anthropicRequestBody{
		Model:       model,
		Messages:    messages,
		System:      strings.Join(systemParts, "\n"),
		MaxTokens:   maxTokens,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.StopSequences(),
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	url := strings.TrimRight(upstream.BaseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", upstream.APIKey)
	version := os.Getenv("ANTHROPIC_VERSION")
	if version == "" {
		version = "2023-06-01"
	}
	httpReq.Header.Set("anthropic-version", version)
	setExtraHeaders(httpReq, upstream.Headers)
	return httpReq, nil
}

type anthropicResponseBody struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (a *AnthropicAdapter) Buffered(body []byte) ([]byte, usage.RawUsage, bool, error) {
	var resp anthropicResponseBody
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, usage.RawUsage{}, false, fmt.Errorf("unmarshal anthropic response: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	out := chatapi.Response{
		Object: "chat.completion",
		Model:  resp.Model,
		Choices: []chatapi.Choice{{
			Index:        0,
			Message:      chatapi.Message{Role: "assistant", Content: text.String()},
			FinishReason: mapAnthropicStopReason(resp.StopReason),
		}},
	}
	u := usage.NormalizeAnthropic(resp.Usage.InputTokens, resp.Usage.OutputTokens)
	out.Usage = &chatapi.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, usage.RawUsage{}, false, err
	}
	return data, u, true, nil
}

func (a *AnthropicAdapter) StreamTransform() StreamTransformer {
	return func(data []byte) ([]byte, usage.RawUsage, bool, bool) {
		var event struct {
			Type    string `json:"type"`
			Index   int    `json:"index"`
			Delta   struct {
				Type       string `json:"type"`
				Text       string `json:"text"`
				StopReason string `json:"stop_reason"`
			} `json:"delta"`
			Message struct {
				Usage struct {
					InputTokens  int `json:"input_tokens"`
					OutputTokens int `json:"output_tokens"`
				} `json:"usage"`
			} `json:"message"`
		}
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, usage.RawUsage{}, false, false
		}

		switch event.Type {
		case "message_start":
			u := usage.NormalizeAnthropic(event.Message.Usage.InputTokens, event.Message.Usage.OutputTokens)
			return nil, u, true, false

		case "content_block_delta":
			if event.Delta.Type != "text_delta" {
				return nil, usage.RawUsage{}, false, false
			}
			chunk := chatapi.StreamChunk{
				Object: "chat.completion.chunk",
				Choices: []chatapi.StreamChoice{{
					Index: event.Index,
					Delta: chatapi.StreamDelta{Content: event.Delta.Text},
				}},
			}
			out, err := json.Marshal(chunk)
			if err != nil {
				return nil, usage.RawUsage{}, false, false
			}
			return out, usage.RawUsage{}, false, false

		case "message_stop":
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
			return out, usage.RawUsage{}, false, true

		default:
			return nil, usage.RawUsage{}, false, false
		}
	}
}

func mapAnthropicStopReason(reason string) string {
	switch reason {
	case "max_tokens":
		return "length"
	case "end_turn", "stop_sequence":
		return "stop"
	default:
		return reason
	}
}
