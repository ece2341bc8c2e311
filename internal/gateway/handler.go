// Package gateway implements the routing entry point: auth, fingerprinting,
// cache lookup, classifier invocation, and adapter dispatch for
// POST /v1/chat/completions, plus the read-only health/usage/dashboard
// endpoints.
package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/pathemata-mathemata/openrouter/internal/adapters"
	"github.com/pathemata-mathemata/openrouter/internal/cache"
	"github.com/pathemata-mathemata/openrouter/internal/chatapi"
	"github.com/pathemata-mathemata/openrouter/internal/classify"
	"github.com/pathemata-mathemata/openrouter/internal/config"
	"github.com/pathemata-mathemata/openrouter/internal/fingerprint"
	"github.com/pathemata-mathemata/openrouter/internal/httputil"
	"github.com/pathemata-mathemata/openrouter/internal/usage"
)

// Handler holds the dependencies shared by every request. Everything here
// is created once at startup; the config.Loader is the only piece that can
// change underneath a running handler (on upstreams.json reload).
type Handler struct {
	loader     *config.Loader
	cache      cache.DecisionCache
	classifier *classify.Client
	agg        *usage.Aggregator
	httpClient *http.Client
	sf         singleflight.Group
}

func NewHandler(loader *config.Loader, decisionCache cache.DecisionCache, classifier *classify.Client, agg *usage.Aggregator, httpClient *http.Client) *Handler {
	return &Handler{
		loader:     loader,
		cache:      decisionCache,
		classifier: classifier,
		agg:        agg,
		httpClient: httpClient,
	}
}

// ChatCompletions handles POST /v1/chat/completions.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	cfg := h.loader.Config()

	r.Body = http.MaxBytesReader(w, r.Body, cfg.Server.BodyLimitBytes)
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteInvalidRequest(w)
		return
	}
	defer r.Body.Close()

	var req chatapi.Request
	if err := json.Unmarshal(rawBody, &req); err != nil {
		httputil.WriteInvalidRequest(w)
		return
	}
	if len(req.Messages) == 0 {
		httputil.WriteInvalidRequest(w)
		return
	}

	decision := h.decide(r, cfg, &req, rawBody)
	route := routeForDecision(decision)

	upstream := cfg.Upstream(config.Tier(route))
	if upstream == nil {
		upstream = cfg.Upstream(config.TierFrontier)
		route = usage.RouteFrontier
	}

	adapter, err := adapters.Resolve(upstream)
	if err != nil {
		httputil.WriteProviderNotSupported(w)
		return
	}

	switch validateUpstreamTarget(&req, upstream) {
	case missingModel:
		httputil.WriteMissingModel(w)
		return
	case missingDeployment:
		httputil.WriteMissingDeployment(w)
		return
	}

	err = adapters.Dispatch(r.Context(), h.httpClient, w, &req, rawBody, upstream, adapter,
		cfg.Server.DecisionHeader, cfg.Server.UpstreamHeader, decision, h.agg, route)
	if err != nil {
		h.renderDispatchError(w, err)
	}
}

func (h *Handler) renderDispatchError(w http.ResponseWriter, err error) {
	if upstreamErr, ok := err.(*adapters.UpstreamError); ok {
		httputil.WriteErrorWithDetails(w, upstreamErr.StatusCode, "upstream_error", upstreamErr.Details)
		return
	}
	slog.Error("dispatch failed", "error", err)
	httputil.WriteInternalError(w)
}

// decide implements §4.6 step 3: fixed decision when the classifier is
// disabled, otherwise fingerprint → cache → classify → cache-store, with
// any classifier failure degrading to frontier.
func (h *Handler) decide(r *http.Request, cfg *config.Config, req *chatapi.Request, rawBody []byte) int {
	if !cfg.Classifier.Enabled {
		return 2
	}

	fp, err := fingerprint.Hash(rawBody)
	if err != nil {
		slog.Warn("fingerprint failed, falling back to frontier", "error", err)
		return 2
	}

	if cached, ok := h.cache.Get(r.Context(), fp); ok {
		if digit, err := strconv.Atoi(cached); err == nil {
			return digit
		}
	}

	result, err, _ := h.sf.Do(fp, func() (interface{}, error) {
		return h.classifier.Classify(r.Context(), req)
	})
	if err != nil {
		slog.Warn("classifier failed, falling back to frontier", "error", err)
		return 2
	}

	decision := result.(int)
	h.cache.Set(r.Context(), fp, strconv.Itoa(decision))
	return decision
}

func routeForDecision(decision int) usage.Route {
	switch decision {
	case 0:
		return usage.RouteCheap
	case 1:
		return usage.RouteMedium
	default:
		return usage.RouteFrontier
	}
}

type targetIssue int

const (
	targetOK targetIssue = iota
	missingModel
	missingDeployment
)

// validateUpstreamTarget reports when the resolved upstream is missing
// information its adapter needs to build a request.
func validateUpstreamTarget(req *chatapi.Request, upstream *config.Upstream) targetIssue {
	if upstream.Provider == config.ProviderAzureOpenAI && upstream.Deployment == "" {
		return missingDeployment
	}
	if upstream.Provider == config.ProviderGemini || upstream.Provider == config.ProviderAnthropic || upstream.Provider == config.ProviderCohere {
		model := req.Model
		if upstream.Model != "" {
			model = upstream.Model
		}
		if model == "" {
			return missingModel
		}
	}
	return targetOK
}
