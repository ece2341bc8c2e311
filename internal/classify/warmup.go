package classify

import (
	"context"
	"log/slog"
	"time"
)

const warmupMinTimeout = 10 * time.Second

// Warmup fires a single throwaway classification to force the classifier
// backend to load its model before real traffic arrives. Failures are
// warn-logged and never propagate — a cold classifier still falls back to
// frontier on the first real request.
func (c *Client) Warmup(ctx context.Context) {
	if !c.cfg.Warmup {
		return
	}
	if c.cfg.WarmupDelayMs > 0 {
		select {
		case <-time.After(time.Duration(c.cfg.WarmupDelayMs) * time.Millisecond):
		case <-ctx.Done():
			return
		}
	}

	timeout := c.cfg.Timeout()
	if timeout < warmupMinTimeout {
		timeout = warmupMinTimeout
	}
	messages := BuildMessages(c.cfg.SystemPrompt, "Warmup.")
	if _, _, err := c.attemptWithLoadingRetry(ctx, messages, c.cfg.ForceStream, timeout); err != nil {
		slog.Warn("classifier warmup failed", "error", err)
		return
	}
	slog.Info("classifier warmup complete")
}

// KeepAlive runs Warmup every KeepAliveMs until ctx is cancelled. Each run
// waits WarmupDelayMs first and does nothing when warmup is disabled.
// Intended to be run in its own goroutine from process startup.
func (c *Client) KeepAlive(ctx context.Context) {
	if c.cfg.KeepAliveMs <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(c.cfg.KeepAliveMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Warmup(ctx)
		}
	}
}
