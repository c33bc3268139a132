package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Model provider metrics: embedding and generation backends plus the query embedding cache.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Subsystem: "embedding",
			Name:      "requests_total",
			Help:      "Embedding backend calls by provider, model and status",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragdex",
			Subsystem: "embedding",
			Name:      "request_duration_seconds",
			Help:      "Latency of successful embedding calls",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"provider", "model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Subsystem: "embedding",
			Name:      "tokens_total",
			Help:      "Tokens billed for query embeddings",
		},
		[]string{"provider", "model", "type"}, // prompt / total
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Subsystem: "embedding",
			Name:      "errors_total",
			Help:      "Embedding failures by kind",
		},
		[]string{"provider", "model", "error_type"}, // api_error / empty_response
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Subsystem: "embedding",
			Name:      "cache_total",
			Help:      "Query embedding cache lookups",
		},
		[]string{"result"}, // hit / miss
	)

	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Subsystem: "generation",
			Name:      "requests_total",
			Help:      "Generation backend calls by provider, model and status",
		},
		[]string{"provider", "model", "status"},
	)

	GenerationTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Subsystem: "generation",
			Name:      "tokens_total",
			Help:      "Generation tokens by provider, model and type",
		},
		[]string{"provider", "model", "type"}, // prompt / completion
	)
)

// EmbeddingFailed records a failed embedding call.
func EmbeddingFailed(provider, model, errType string) {
	EmbeddingRequestsTotal.WithLabelValues(provider, model, "error").Inc()
	EmbeddingErrorsTotal.WithLabelValues(provider, model, errType).Inc()
}

// EmbeddingSucceeded records a successful embedding call. Zero token counts are skipped.
func EmbeddingSucceeded(provider, model string, took time.Duration, promptTokens, totalTokens int) {
	EmbeddingRequestsTotal.WithLabelValues(provider, model, "success").Inc()
	EmbeddingRequestDuration.WithLabelValues(provider, model).Observe(took.Seconds())
	if promptTokens > 0 {
		EmbeddingTokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if totalTokens > 0 {
		EmbeddingTokensTotal.WithLabelValues(provider, model, "total").Add(float64(totalTokens))
	}
}

// GenerationFinished records one generation call with its token usage.
func GenerationFinished(provider, model, status string, prompt, completion int) {
	GenerationRequestsTotal.WithLabelValues(provider, model, status).Inc()
	if prompt > 0 {
		GenerationTokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		GenerationTokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completion))
	}
}

var registerProviders sync.Once

// RegisterProviderMetrics registers embedding and generation metrics with the default registry.
// Safe to call more than once.
func RegisterProviderMetrics() {
	registerProviders.Do(func() {
		prometheus.MustRegister(
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingTokensTotal,
			EmbeddingErrorsTotal,
			EmbeddingCacheTotal,
			GenerationRequestsTotal,
			GenerationTokensTotal,
		)
	})
}
