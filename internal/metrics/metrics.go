// Package metrics exposes the service's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "toxiclens"

var (
	// TextsClassified counts texts that received scores.
	TextsClassified = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "texts_classified_total",
		Help:      "Number of texts classified.",
	})

	// ChunksScored counts scorer invocations.
	ChunksScored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_scored_total",
		Help:      "Number of chunks sent to the scoring model.",
	})

	// PositiveLabels counts positive decisions per class.
	PositiveLabels = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "positive_labels_total",
		Help:      "Number of positive labels by toxicity class.",
	}, []string{"class"})

	// InferenceDuration observes scorer latency per chunk.
	InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "inference_duration_seconds",
		Help:      "Latency of a single scoring call.",
		Buckets:   prometheus.DefBuckets,
	})

	// CommentsFetched counts unique comments collected from the platform.
	CommentsFetched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "comments_fetched_total",
		Help:      "Number of unique comments collected.",
	})

	// PlatformCalls counts comment platform API calls by operation.
	PlatformCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "platform_calls_total",
		Help:      "Number of comment platform API calls.",
	}, []string{"op"})

	// Failures counts failures by error kind.
	Failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "failures_total",
		Help:      "Number of failures by kind.",
	}, []string{"kind"})

	// CacheLookups counts score cache lookups by result.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "score_cache_lookups_total",
		Help:      "Score cache lookups by result (hit, miss).",
	}, []string{"result"})

	// RequestDuration observes HTTP request latency by route and status.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Handler returns the Prometheus HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
