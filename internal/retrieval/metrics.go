package retrieval

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "recalld",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Duration of retrieval requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	retrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total retrieval requests by result and mode",
		},
		[]string{"result", "mode"},
	)
)

func recordRetrieval(duration time.Duration, err error, degraded bool) {
	retrievalDuration.Observe(duration.Seconds())

	result := "success"
	if err != nil {
		result = "error"
	}
	mode := "semantic"
	if degraded {
		mode = "lexical"
	}
	retrievalsTotal.WithLabelValues(result, mode).Inc()
}
