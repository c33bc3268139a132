package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Retrieval pipeline Prometheus metrics.
var (
	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragdex",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Time spent in each pipeline state",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "pipeline_runs_total",
			Help:      "Completed pipeline runs by mode and outcome",
		},
		[]string{"mode", "outcome"}, // mode: buffered/stream; outcome: generated/cache_hit/no_context/error
	)

	AnswerCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "answer_cache_lookups_total",
			Help:      "Similarity cache lookups by result",
		},
		[]string{"result"}, // exact_hit / semantic_hit / miss / error
	)

	AnswerCacheWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "answer_cache_writes_total",
			Help:      "Similarity cache writes by status",
		},
		[]string{"status"},
	)

	LexicalRebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "lexical_rebuilds_total",
			Help:      "Lexical index builds by workspace and status",
		},
		[]string{"workspace", "status"},
	)

	LexicalRebuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragdex",
			Name:      "lexical_rebuild_duration_seconds",
			Help:      "Lexical index build duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"workspace"},
	)

	LexicalDocuments = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ragdex",
			Name:      "lexical_documents",
			Help:      "Documents in the active lexical index",
		},
		[]string{"workspace"},
	)

	StreamedTokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "streamed_tokens_total",
			Help:      "Tokens delivered to streaming clients",
		},
	)


	QueueInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragdex",
			Name:      "queue_in_flight",
			Help:      "Queries currently executing",
		},
	)

	QueueWaiting = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragdex",
			Name:      "queue_waiting",
			Help:      "Queries waiting for an execution slot",
		},
	)

	QueueRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "queue_rejected_total",
			Help:      "Queries rejected because the queue was full",
		},
	)
)

var registerPipeline sync.Once

// RegisterPipelineMetrics registers pipeline, cache, lexical and queue metrics.
// Safe to call more than once.
func RegisterPipelineMetrics() {
	registerPipeline.Do(func() {
		prometheus.MustRegister(
			PipelineStageDuration,
			PipelineRunsTotal,
			AnswerCacheLookupsTotal,
			AnswerCacheWritesTotal,
			LexicalRebuildsTotal,
			LexicalRebuildDuration,
			LexicalDocuments,
			StreamedTokensTotal,
			QueueInFlight,
			QueueWaiting,
			QueueRejectedTotal,
		)
	})
}
