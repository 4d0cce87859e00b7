package consolidation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sweepOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "recalld",
		Subsystem: "consolidation",
		Name:      "entries_total",
		Help:      "Consolidation sweep outcomes by result",
	},
	[]string{"result"},
)

func recordSweep(r *SweepResult) {
	sweepOutcomes.WithLabelValues("consolidated").Add(float64(r.Consolidated))
	sweepOutcomes.WithLabelValues("skipped").Add(float64(r.Skipped))
}
