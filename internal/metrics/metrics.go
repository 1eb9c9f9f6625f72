// Package metrics exposes the Prometheus instruments of the recommender.
// All collectors register with the default registry via promauto and are
// served by promhttp on /metrics.
package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ranking Metrics
	RecommendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gamerec_recommend_duration_seconds",
			Help:    "End-to-end recommendation latency in seconds",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	RecommendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamerec_recommend_requests_total",
			Help: "Total number of recommendation requests by outcome",
		},
		[]string{"outcome"}, // "ok", "empty_query", "invalid", "error", "cached"
	)

	CandidatesRetrieved = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gamerec_candidates_retrieved",
			Help:    "Candidates returned by the vector index per request",
			Buckets: []float64{0, 1, 5, 10, 20, 30, 40, 50, 100},
		},
	)

	CandidatesFiltered = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gamerec_candidates_after_filter",
			Help:    "Candidates surviving hydration and filtering per request",
			Buckets: []float64{0, 1, 5, 10, 20, 30, 40, 50, 100},
		},
	)

	StaleReferences = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gamerec_stale_references_total",
			Help: "Index candidates with no matching catalog entry",
		},
	)

	EmptyResults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gamerec_empty_results_total",
			Help: "Requests where filtering removed every candidate",
		},
	)

	// Embedding Metrics
	EmbedDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gamerec_embed_duration_seconds",
			Help:    "Query embedding latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	EmbedErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamerec_embed_errors_total",
			Help: "Query embedding failures",
		},
		[]string{"provider", "error_type"}, // "circuit_open", "timeout", "canceled", "provider"
	)

	// Response Cache Metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gamerec_response_cache_hits_total",
			Help: "Total number of response cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gamerec_response_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// Snapshot Metrics
	SnapshotItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gamerec_snapshot_items",
			Help: "Number of games in the served snapshot",
		},
	)

	SnapshotBuiltAt = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gamerec_snapshot_built_timestamp_seconds",
			Help: "Build time of the served snapshot as a unix timestamp",
		},
	)

	SnapshotSwaps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gamerec_snapshot_swaps_total",
			Help: "Number of snapshots swapped in while serving",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamerec_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gamerec_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gamerec_api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamerec_api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)
)

// RecordRecommend records the outcome of one recommendation.
func RecordRecommend(outcome string, duration time.Duration) {
	RecommendRequests.WithLabelValues(outcome).Inc()
	RecommendDuration.Observe(duration.Seconds())
}

// RecordCandidates records retrieval and filtering counts of one request.
func RecordCandidates(retrieved, kept, stale int) {
	CandidatesRetrieved.Observe(float64(retrieved))
	CandidatesFiltered.Observe(float64(kept))
	if stale > 0 {
		StaleReferences.Add(float64(stale))
	}
	if kept == 0 {
		EmptyResults.Inc()
	}
}

// RecordEmbed records one query embedding call.
func RecordEmbed(provider string, duration time.Duration, err error) {
	EmbedDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if err != nil {
		EmbedErrors.WithLabelValues(provider, classify(err)).Inc()
	}
}

// RecordCache records a response cache lookup.
func RecordCache(hit bool) {
	if hit {
		CacheHits.Inc()
	} else {
		CacheMisses.Inc()
	}
}

// SetSnapshot publishes the served snapshot's size and age.
func SetSnapshot(items int, builtAt time.Time) {
	SnapshotItems.Set(float64(items))
	SnapshotBuiltAt.Set(float64(builtAt.Unix()))
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// classify keeps error label cardinality bounded. Circuit-open errors are
// matched by message so this package does not import the embedder.
func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case strings.Contains(err.Error(), "circuit open"):
		return "circuit_open"
	default:
		return "provider"
	}
}
