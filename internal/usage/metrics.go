package usage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics mirrors the in-process buckets as Prometheus series. It never
// backs the /usage snapshot — the buckets in Aggregator remain the source
// of truth — but gives operators the same numbers via /metrics.
type Metrics struct {
	RequestsTotal *prometheus.CounterVec
	TokensTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers the router's Prometheus series against
// the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer registers against an explicit registerer, which
// tests use to avoid colliding with the process-wide default registry.
func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "router_requests_total",
			Help: "Total number of proxied requests by route and upstream.",
		}, []string{"route", "upstream"}),

		TokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "router_tokens_total",
			Help: "Total tokens processed by route and direction.",
		}, []string{"route", "direction"}),
	}
}

// Observe records one RecordUsage call's worth of Prometheus series.
func (m *Metrics) Observe(route, upstream string, u RawUsage) {
	m.RequestsTotal.WithLabelValues(route, upstream).Inc()
	if !u.Present {
		return
	}
	if u.PromptTokens > 0 {
		m.TokensTotal.WithLabelValues(route, "prompt").Add(float64(u.PromptTokens))
	}
	if u.CompletionTokens > 0 {
		m.TokensTotal.WithLabelValues(route, "completion").Add(float64(u.CompletionTokens))
	}
}
