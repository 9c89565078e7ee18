package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recommendation Prometheus metrics.
var (
	RecommendationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dishrec",
			Name:      "recommendations_total",
			Help:      "Total recommendation requests by outcome",
		},
		[]string{"status"},
	)

	RecommendationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dishrec",
			Name:      "recommendation_duration_seconds",
			Help:      "Time to build the composite embedding and query the pool",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	HistoryResolutionMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dishrec",
			Name:      "history_resolution_misses_total",
			Help:      "History entries with no catalog document",
		},
		[]string{"policy"},
	)

	IngestRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dishrec",
			Name:      "ingest_rows_total",
			Help:      "Source rows processed by the document builder",
		},
		[]string{"status"},
	)
)

var registered bool

// Register registers all domain metrics with the default registry. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingTokensTotal,
		EmbeddingErrorsTotal,
		EmbeddingCacheTotal,
		SynthesisRequestsTotal,
		SynthesisRequestDuration,
		RecommendationsTotal,
		RecommendationDuration,
		HistoryResolutionMissesTotal,
		IngestRowsTotal,
	)
	registered = true
}
