package embeddings

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "recalld",
			Subsystem: "embedding",
			Name:      "generation_duration_seconds",
			Help:      "Duration of embedding generation in seconds, by model and operation",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"model", "operation"},
	)

	batchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "recalld",
			Subsystem: "embedding",
			Name:      "batch_size",
			Help:      "Number of texts per embedding batch request",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"model", "operation"},
	)

	generationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "embedding",
			Name:      "errors_total",
			Help:      "Total embedding generation errors by model and operation",
		},
		[]string{"model", "operation"},
	)

	cacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "embedding",
			Name:      "cache_events_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"},
	)
)

func recordGeneration(model, operation string, duration time.Duration, count int, err error) {
	generationDuration.WithLabelValues(model, operation).Observe(duration.Seconds())
	if count > 0 {
		batchSize.WithLabelValues(model, operation).Observe(float64(count))
	}
	if err != nil {
		generationErrors.WithLabelValues(model, operation).Inc()
	}
}

func recordCacheHit() {
	cacheEvents.WithLabelValues("hit").Inc()
}

func recordCacheMiss() {
	cacheEvents.WithLabelValues("miss").Inc()
}
