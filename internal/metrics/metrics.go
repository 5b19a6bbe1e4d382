// Package metrics holds the prometheus collectors of a pipeline run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "orsmatrix"

// Collectors groups every metric the pipeline updates.
type Collectors struct {
	Rows          *prometheus.CounterVec
	RowFailures   *prometheus.CounterVec
	Chunks        prometheus.Counter
	ChunkDuration prometheus.Histogram
	Workers       prometheus.Gauge
	Progress      prometheus.Gauge
}

// New registers the collectors on reg. A nil reg yields unregistered collectors.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		Rows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows queried against the routing service, by outcome.",
		}, []string{"outcome"}),
		RowFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_failures_total",
			Help:      "Rows skipped because of a transient routing service failure, by error kind.",
		}, []string{"code"}),
		Chunks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Chunks appended to the output store.",
		}),
		ChunkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_duration_seconds",
			Help:      "Time from chunk dispatch to durable append.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),
		Workers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Workers used for the most recent chunk.",
		}),
		Progress: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "progress_ratio",
			Help:      "Fraction of input rows covered by appended chunks.",
		}),
	}
}
