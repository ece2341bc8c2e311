// Package usage implements the process-wide usage aggregator: per-route
// token counters normalized across three vendor usage schemas, with a
// Prometheus mirror for scraping.
package usage

import (
	"sync"
	"time"
)

// Route identifies one of the tracked buckets.
type Route string

const (
	RouteCheap    Route = "cheap"
	RouteMedium   Route = "medium"
	RouteFrontier Route = "frontier"
	RouteUnknown  Route = "unknown"
)

// Bucket holds the running totals for one route.
type Bucket struct {
	PromptTokens     int64     `json:"promptTokens"`
	CompletionTokens int64     `json:"completionTokens"`
	TotalTokens      int64     `json:"totalTokens"`
	Requests         int64     `json:"requests"`
	WithUsage        int64     `json:"withUsage"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// RawUsage is an unrecognized-schema-tolerant view over an upstream's usage
// object. Record accepts any combination of these fields.
type RawUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	// Present signals that a usage object was found at all (vs. entirely
	// absent from the upstream reply), gating WithUsage.
	Present bool
}

// NormalizeOpenAI builds a RawUsage from the OpenAI usage schema.
func NormalizeOpenAI(prompt, completion, total int) RawUsage {
	return normalize(prompt, completion, total)
}

// NormalizeAnthropic builds a RawUsage from the Anthropic usage schema
// (input_tokens/output_tokens have no combined total field).
func NormalizeAnthropic(input, output int) RawUsage {
	return normalize(input, output, 0)
}

// NormalizeGemini builds a RawUsage from the Gemini usageMetadata schema.
func NormalizeGemini(promptTokenCount, candidatesTokenCount, totalTokenCount int) RawUsage {
	return normalize(promptTokenCount, candidatesTokenCount, totalTokenCount)
}

func normalize(prompt, completion, total int) RawUsage {
	if total == 0 {
		total = prompt + completion
	}
	return RawUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total, Present: true}
}

// Record is the single call passed to the aggregator's entry point.
type Record struct {
	Route    Route
	Upstream string
	Usage    RawUsage
}

type bucketState struct {
	mu sync.Mutex
	b  Bucket
}

// Aggregator owns the four process-wide buckets and the optional
// Prometheus mirror. The zero value is not usable; construct with New.
type Aggregator struct {
	buckets map[Route]*bucketState
	metrics *Metrics
}

// New creates an aggregator. metrics may be nil to disable the Prometheus
// mirror (METRICS_ENABLED=false).
func New(metrics *Metrics) *Aggregator {
	a := &Aggregator{
		buckets: make(map[Route]*bucketState, 4),
		metrics: metrics,
	}
	for _, r := range []Route{RouteCheap, RouteMedium, RouteFrontier, RouteUnknown} {
		a.buckets[r] = &bucketState{}
	}
	return a
}

func (a *Aggregator) bucketFor(r Route) *bucketState {
	if b, ok := a.buckets[r]; ok {
		return b
	}
	return a.buckets[RouteUnknown]
}

// RecordUsage increments bucket.requests unconditionally and, when usage is
// present, folds its normalized token counts into the bucket. It never
// panics on missing or unrecognized usage.
func (a *Aggregator) RecordUsage(rec Record) {
	bs := a.bucketFor(rec.Route)

	bs.mu.Lock()
	bs.b.Requests++
	if rec.Usage.Present {
		bs.b.WithUsage++
		bs.b.PromptTokens += int64(rec.Usage.PromptTokens)
		bs.b.CompletionTokens += int64(rec.Usage.CompletionTokens)
		bs.b.TotalTokens += int64(rec.Usage.TotalTokens)
		bs.b.LastUpdated = time.Now()
	}
	bs.mu.Unlock()

	if a.metrics != nil {
		a.metrics.Observe(string(rec.Route), rec.Upstream, rec.Usage)
	}
}

// Snapshot is the deep-copied, percentage-annotated view returned by
// SnapshotUsage().
type Snapshot struct {
	Buckets     map[Route]Bucket  `json:"buckets"`
	Percentages map[Route]float64 `json:"percentages"`
	Total       int64             `json:"total"`
	LastUpdated time.Time         `json:"lastUpdated"`
}

// SnapshotUsage returns a consistent, deep-copied read of all buckets, plus
// per-route percentages of the tracked total (cheap+medium+frontier only).
func (a *Aggregator) SnapshotUsage() Snapshot {
	snap := Snapshot{
		Buckets:     make(map[Route]Bucket, len(a.buckets)),
		Percentages: make(map[Route]float64, 3),
	}

	var tracked int64
	var lastUpdated time.Time
	for route, bs := range a.buckets {
		bs.mu.Lock()
		b := bs.b
		bs.mu.Unlock()

		snap.Buckets[route] = b
		if b.LastUpdated.After(lastUpdated) {
			lastUpdated = b.LastUpdated
		}
		if route == RouteCheap || route == RouteMedium || route == RouteFrontier {
			tracked += b.TotalTokens
		}
	}

	snap.Total = tracked
	snap.LastUpdated = lastUpdated
	for _, route := range []Route{RouteCheap, RouteMedium, RouteFrontier} {
		if tracked == 0 {
			snap.Percentages[route] = 0
			continue
		}
		snap.Percentages[route] = float64(snap.Buckets[route].TotalTokens) / float64(tracked) * 100
	}
	return snap
}
