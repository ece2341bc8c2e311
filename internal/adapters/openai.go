package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pathemata-mathemata/openrouter/internal/chatapi"
	"github.com/pathemata-mathemata/openrouter/internal/classify"
	"github.com/pathemata-mathemata/openrouter/internal/config"
	"github.com/pathemata-mathemata/openrouter/internal/usage"
)

// OpenAIAdapter is the transparent pass-through used for every
// OpenAI-wire-compatible upstream (openrouter, openai, mistral, groq,
// together, perplexity, and the generic openai_compatible tag).
type OpenAIAdapter struct{}

func NewOpenAIAdapter() *OpenAIAdapter { return &OpenAIAdapter{} }

func (a *OpenAIAdapter) Name() string { return "openai" }

func (a *OpenAIAdapter) Kind() Kind { return KindPassthrough }

func (a *OpenAIAdapter) BuildRequest(ctx context.Context, req *chatapi.Request, rawBody []byte, upstream *config.Upstream) (*http.Request, error) {
	body, err := overrideModel(rawBody, upstream.Model)
	if err != nil {
		return nil, fmt.Errorf("override model: %w", err)
	}

	url := classify.NormalizeBaseURL(upstream.BaseURL) + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
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

func (a *OpenAIAdapter) Buffered(body []byte) ([]byte, usage.RawUsage, bool, error) {
	var probe struct {
		Usage *struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.Usage == nil {
		return body, usage.RawUsage{}, false, nil
	}
	u := usage.NormalizeOpenAI(probe.Usage.PromptTokens, probe.Usage.CompletionTokens, probe.Usage.TotalTokens)
	return body, u, true, nil
}

func (a *OpenAIAdapter) StreamTransform() StreamTransformer {
	return func(data []byte) ([]byte, usage.RawUsage, bool, bool) {
		if string(data) == "[DONE]" {
			return nil, usage.RawUsage{}, false, true
		}
		var probe struct {
			Usage *struct {
				PromptTokens     int `json:"prompt_tokens"`
				CompletionTokens int `json:"completion_tokens"`
				TotalTokens      int `json:"total_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal(data, &probe); err == nil && probe.Usage != nil {
			u := usage.NormalizeOpenAI(probe.Usage.PromptTokens, probe.Usage.CompletionTokens, probe.Usage.TotalTokens)
			return data, u, true, false
		}
		return data, usage.RawUsage{}, false, false
	}
}

// overrideModel replaces rawBody's top-level "model" field with model when
// model is non-empty, without disturbing the rest of the payload.
func overrideModel(rawBody []byte, model string) ([]byte, error) {
	if model == "" {
		return rawBody, nil
	}
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(rawBody, &generic); err != nil {
		return rawBody, nil
	}
	encoded, err := json.Marshal(model)
	if err != nil {
		return rawBody, err
	}
	generic["model"] = encoded
	return json.Marshal(generic)
}

func setExtraHeaders(req *http.Request, headers map[string]string) {
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
}
