package classify

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pathemata-mathemata/openrouter/internal/chatapi"
	"github.com/pathemata-mathemata/openrouter/internal/config"
)

// Client drives the classifier HTTP transport: prompt construction, the
// streaming/buffered fallback, and the timeout/model-loading retry policy.
type Client struct {
	cfg        config.ClassifierConfig
	httpClient *http.Client
}

func NewClient(cfg config.ClassifierConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
}

// Classify builds the classification prompt from req and returns a
// decision in {0,1,2}. Every returned error is a *Error; callers at the
// routing layer degrade any error to decision=frontier.
func (c *Client) Classify(ctx context.Context, req *chatapi.Request) (int, error) {
	input := BuildInput(req, c.cfg.Strategy, c.cfg.MaxChars)
	messages := BuildMessages(c.cfg.SystemPrompt, input)
	return c.classifyMessages(ctx, messages, c.cfg.Timeout())
}

func (c *Client) classifyMessages(ctx context.Context, messages []chatapi.Message, timeout time.Duration) (int, error) {
	first, second := true, false
	if !c.cfg.ForceStream {
		first, second = false, true
	}

	decision, has, err := c.attemptWithLoadingRetry(ctx, messages, first, timeout)
	if err != nil {
		return 0, err
	}
	if has {
		return decision, nil
	}

	decision, has, err = c.attemptWithLoadingRetry(ctx, messages, second, timeout)
	if err != nil {
		return 0, err
	}
	if has {
		return decision, nil
	}

	return 0, &Error{Kind: KindNoDecision}
}

// attemptWithTimeoutRetry issues one transport-mode attempt, retrying
// exactly once on timeout with a doubled (floor 8s) budget.
func (c *Client) attemptWithTimeoutRetry(ctx context.Context, messages []chatapi.Message, streaming bool, timeout time.Duration) (int, bool, error) {
	decision, has, err := c.rawAttempt(ctx, messages, streaming, timeout)
	if err == nil {
		return decision, has, nil
	}
	if !IsKind(err, KindTimeout) {
		return decision, has, err
	}

	slog.Warn("classifier timeout, retrying once")
	retryTimeout := timeout * 2
	if retryTimeout < 8*time.Second {
		retryTimeout = 8 * time.Second
	}
	return c.rawAttempt(ctx, messages, streaming, retryTimeout)
}

// attemptWithLoadingRetry wraps attemptWithTimeoutRetry with the
// model-loading retry loop: up to LoadingMaxRetries extra attempts with
// LoadingRetryMs delay between them.
func (c *Client) attemptWithLoadingRetry(ctx context.Context, messages []chatapi.Message, streaming bool, timeout time.Duration) (int, bool, error) {
	maxRetries := c.cfg.LoadingMaxRetries
	delay := time.Duration(c.cfg.LoadingRetryMs) * time.Millisecond

	var decision int
	var has bool
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		decision, has, err = c.attemptWithTimeoutRetry(ctx, messages, streaming, timeout)
		if err == nil || !IsKind(err, KindModelLoading) {
			return decision, has, err
		}
		if attempt == maxRetries {
			break
		}
		slog.Warn("classifier model loading, retrying", "attempt", attempt+1)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, false, &Error{Kind: KindTimeout, Err: ctx.Err()}
		}
	}
	return decision, has, err
}
