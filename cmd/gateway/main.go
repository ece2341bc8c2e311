package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pathemata-mathemata/openrouter/internal/cache"
	"github.com/pathemata-mathemata/openrouter/internal/classify"
	"github.com/pathemata-mathemata/openrouter/internal/config"
	"github.com/pathemata-mathemata/openrouter/internal/gateway"
	"github.com/pathemata-mathemata/openrouter/internal/usage"
)

var version = "dev"

const gracefulShutdownTimeout = 10 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	loader := config.NewLoader(logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start upstreams watcher", "error", err)
	}

	cfg := loader.Config()

	decisionCache := buildCache(context.Background(), logger, cfg.Cache)

	var metrics *usage.Metrics
	if cfg.Server.MetricsEnabled {
		metrics = usage.NewMetrics()
	}
	agg := usage.New(metrics)

	classifier := classify.NewClient(cfg.Classifier)

	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()
	go classifier.Warmup(bgCtx)
	go classifier.KeepAlive(bgCtx)

	handler := gateway.NewHandler(loader, decisionCache, classifier, agg, http.DefaultClient)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	// /metrics follows Prometheus convention and is unauthenticated.
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	gateway.RegisterRoutes(r, handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("router starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("router stopped")
}

// buildCache selects the decision cache backend: Redis when configured and
// reachable, falling back to the in-process LRU on a connection error, and
// to a no-op when caching is disabled entirely.
func buildCache(ctx context.Context, logger *slog.Logger, cfg config.CacheConfig) cache.DecisionCache {
	if !cfg.Enabled {
		return cache.NewNoop()
	}
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.TTLMs)
		if err != nil {
			logger.Warn("redis unreachable, falling back to in-process cache", "error", err)
		} else {
			logger.Info("decision cache backed by redis")
			return redisCache
		}
	}
	logger.Info("decision cache backed by in-process memory")
	return cache.NewMemory(cfg.Max, time.Duration(cfg.TTLMs)*time.Millisecond)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type contextKey string

const requestIDKey contextKey = "request_id"

func generateRequestID() string {
	now := time.Now()
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), hex.EncodeToString(b))
}
