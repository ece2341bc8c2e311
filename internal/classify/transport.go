package classify

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pathemata-mathemata/openrouter/internal/chatapi"
)

// NormalizeBaseURL strips trailing slashes and appends /v1 if absent.
func NormalizeBaseURL(base string) string {
	trimmed := strings.TrimRight(base, "/")
	if strings.HasSuffix(trimmed, "/v1") {
		return trimmed
	}
	return trimmed + "/v1"
}

type classifyRequestBody struct {
	Model       string             `json:"model"`
	Messages    []chatapi.Message  `json:"messages"`
	Temperature float64            `json:"temperature"`
	MaxTokens   int                `json:"max_tokens"`
	Stream      bool               `json:"stream"`
	LogitBias   map[string]float64 `json:"logit_bias,omitempty"`
}

type sseChoice struct {
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	Text string `json:"text"`
}

type sseEvent struct {
	Choices []sseChoice `json:"choices"`
}

type bufferedChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

type bufferedResponse struct {
	Choices []bufferedChoice `json:"choices"`
}

// rawAttempt issues a single classifier HTTP call, either streaming or
// buffered, with the given timeout. hasDecision is false (with err nil)
// when the call succeeded but no decision digit was present — the caller
// decides whether to retry with the other transport mode.
func (c *Client) rawAttempt(ctx context.Context, messages []chatapi.Message, streaming bool, timeout time.Duration) (decision int, hasDecision bool, err error) {
	body := classifyRequestBody{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Stream:      streaming,
		LogitBias:   c.cfg.LogitBias,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return 0, false, &Error{Kind: KindClassifierError, Err: err}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := NormalizeBaseURL(c.cfg.BaseURL) + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, false, &Error{Kind: KindClassifierError, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return 0, false, &Error{Kind: KindTimeout, Err: err}
		}
		return 0, false, &Error{Kind: KindClassifierError, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		if isModelLoading(resp.StatusCode, string(respBody)) {
			return 0, false, &Error{Kind: KindModelLoading, Err: fmt.Errorf("status %d: %s", resp.StatusCode, respBody)}
		}
		return 0, false, &Error{Kind: KindClassifierError, Err: fmt.Errorf("status %d: %s", resp.StatusCode, respBody)}
	}

	if streaming {
		return c.decodeStream(reqCtx, cancel, resp.Body)
	}
	return decodeBuffered(resp.Body)
}

func isModelLoading(status int, body string) bool {
	if status == http.StatusOK {
		return false
	}
	lower := strings.ToLower(body)
	return strings.Contains(lower, "loading model") || strings.Contains(lower, "model loading")
}

// decodeStream reads SSE events, aborting the connection (via cancel) as
// soon as a decision digit is decoded.
func (c *Client) decodeStream(ctx context.Context, cancel context.CancelFunc, body io.Reader) (int, bool, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var event sseEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		if len(event.Choices) == 0 {
			continue
		}
		text := event.Choices[0].Delta.Content
		if text == "" {
			text = event.Choices[0].Text
		}
		if decision, ok := ExtractDecision(text); ok {
			cancel() // abort the connection: a single stream byte is enough to route
			return decision, true, nil
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, false, &Error{Kind: KindTimeout, Err: err}
		}
	}
	return 0, false, nil
}

func decodeBuffered(body io.Reader) (int, bool, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, false, &Error{Kind: KindClassifierError, Err: err}
	}

	var resp bufferedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return 0, false, &Error{Kind: KindClassifierError, Err: err}
	}
	if len(resp.Choices) == 0 {
		return 0, false, nil
	}
	decision, ok := ExtractDecision(resp.Choices[0].Message.Content)
	return decision, ok, nil
}
