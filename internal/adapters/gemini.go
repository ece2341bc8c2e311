package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pathemata-mathemata/openrouter/internal/chatapi"
	"github.com/pathemata-mathemata/openrouter/internal/config"
	"github.com/pathemata-mathemata/openrouter/internal/usage"
)

// GeminiAdapter translates to/from the Gemini generateContent API.
type GeminiAdapter struct{}

func NewGeminiAdapter() *GeminiAdapter { return &GeminiAdapter{} }

func (a *GeminiAdapter) Name() string { return "gemini" }

func (a *GeminiAdapter) Kind() Kind { return KindTranslating }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiRequestBody struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

func (a *GeminiAdapter) BuildRequest(ctx context.Context, req *chatapi.Request, rawBody []byte, upstream *config.Upstream) (*http.Request, error) {
	var contents []geminiContent
	var systemParts []string
	for _, m := range req.Messages {
		if m.Role == "system" {
			systemParts = append(systemParts, m.Text())
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Text()}}})
	}

	body := geminiRequestBody{
		Contents: contents,
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.EffectiveMaxTokens(),
			StopSequences:   req.StopSequences(),
		},
	}
	if len(systemParts) > 0 {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(systemParts, "\n")}}}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	model := req.Model
	if upstream.Model != "" {
		model = upstream.Model
	}

	method := "generateContent"
	if req.Stream {
		method = "streamGenerateContent"
	}

	reqURL := strings.TrimRight(upstream.BaseURL, "/") + "/models/" + url.PathEscape(model) + ":" + method
	q := url.Values{}
	if req.Stream {
		q.Set("alt", "sse")
	}
	if upstream.APIKey != "" {
		q.Set("key", upstream.APIKey)
	}
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", upstream.APIKey)
	setExtraHeaders(httpReq, upstream.Headers)
	return httpReq, nil
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiCandidate struct {
	Content struct {
		Parts []geminiPart `json:"parts"`
	} `json:"content"`
	FinishReason string `json:"finishReason"`
}

type geminiResponseBody struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata geminiUsageMetadata `json:"usageMetadata"`
}

func (a *GeminiAdapter) Buffered(body []byte) ([]byte, usage.RawUsage, bool, error) {
	var resp geminiResponseBody
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, usage.RawUsage{}, false, fmt.Errorf("unmarshal gemini response: %w", err)
	}

	var text strings.Builder
	finish := "stop"
	if len(resp.Candidates) > 0 {
		for _, p := range resp.Candidates[0].Content.Parts {
			text.WriteString(p.Text)
		}
		finish = mapGeminiFinishReason(resp.Candidates[0].FinishReason)
	}

	u := usage.NormalizeGemini(resp.UsageMetadata.PromptTokenCount, resp.UsageMetadata.CandidatesTokenCount, resp.UsageMetadata.TotalTokenCount)
	out := chatapi.Response{
		Object: "chat.completion",
		Choices: []chatapi.Choice{{
			Index:        0,
			Message:      chatapi.Message{Role: "assistant", Content: text.String()},
			FinishReason: finish,
		}},
		Usage: &chatapi.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		},
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, usage.RawUsage{}, false, err
	}
	return data, u, true, nil
}

func (a *GeminiAdapter) StreamTransform() StreamTransformer {
	return func(data []byte) ([]byte, usage.RawUsage, bool, bool) {
		var resp geminiResponseBody
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, usage.RawUsage{}, false, false
		}

		var text strings.Builder
		var finishReason *string
		if len(resp.Candidates) > 0 {
			for _, p := range resp.Candidates[0].Content.Parts {
				text.WriteString(p.Text)
			}
			if resp.Candidates[0].FinishReason != "" {
				f := mapGeminiFinishReason(resp.Candidates[0].FinishReason)
				finishReason = &f
			}
		}

		chunk := chatapi.StreamChunk{
			Object: "chat.completion.chunk",
			Choices: []chatapi.StreamChoice{{
				Index:        0,
				Delta:        chatapi.StreamDelta{Content: text.String()},
				FinishReason: finishReason,
			}},
		}
		out, err := json.Marshal(chunk)
		if err != nil {
			return nil, usage.RawUsage{}, false, false
		}

		hasUsage := resp.UsageMetadata.TotalTokenCount > 0 || resp.UsageMetadata.PromptTokenCount > 0
		u := usage.NormalizeGemini(resp.UsageMetadata.PromptTokenCount, resp.UsageMetadata.CandidatesTokenCount, resp.UsageMetadata.TotalTokenCount)
		return out, u, hasUsage, false
	}
}

func mapGeminiFinishReason(reason string) string {
	switch reason {
	case "MAX_TOKENS":
		return "length"
	case "STOP", "":
		return "stop"
	default:
		return strings.ToLower(reason)
	}
}
