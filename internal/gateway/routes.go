package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pathemata-mathemata/openrouter/internal/config"
)

var tierOrder = []struct {
	tier config.Tier
	name string
}{
	{config.TierCheap, "cheap"},
	{config.TierMedium, "medium"},
	{config.TierFrontier, "frontier"},
}

// RegisterRoutes wires the router's HTTP surface onto r. Every route is
// behind the same bearer check (§4.6: "all of these are behind the same
// bearer check").
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware)
		r.Post("/v1/chat/completions", h.ChatCompletions)
		r.Get("/health", h.Health)
		r.Get("/usage", h.Usage)
		r.Get("/dashboard", h.Dashboard)
	})
}

// authMiddleware requires `authorization: Bearer <key>` when a router API
// key is configured. With no key configured, every request is rejected —
// an empty ROUTER_API_KEY does not mean "open".
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := h.loader.Config().Server.RouterAPIKey
		if key == "" {
			writeUnauthorized(w)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != key {
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}

type healthUpstream struct {
	Tier    string `json:"tier"`
	BaseURL string `json:"baseUrl"`
}

type healthResponse struct {
	Status            string           `json:"status"`
	ClassifierEnabled bool             `json:"classifierEnabled"`
	ClassifierBaseURL string           `json:"classifierBaseUrl"`
	Upstreams         []healthUpstream `json:"upstreams"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	cfg := h.loader.Config()

	resp := healthResponse{
		Status:            "ok",
		ClassifierEnabled: cfg.Classifier.Enabled,
		ClassifierBaseURL: cfg.Classifier.BaseURL,
	}
	for _, tc := range tierOrder {
		if up := cfg.Upstream(tc.tier); up != nil {
			resp.Upstreams = append(resp.Upstreams, healthUpstream{Tier: tc.name, BaseURL: up.BaseURL})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Usage handles GET /usage.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.agg.SnapshotUsage())
}

// Dashboard handles GET /dashboard.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}
