// Package metrics holds the Prometheus collectors of the analysis pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics is registered once per process on the default registry.
//
//   - docrank_batches_total{result} - batches accepted or rejected
//   - docrank_documents_total{outcome} - documents analyzed, ok or error
//   - docrank_runs_total{outcome} - assistant runs by final state
//   - docrank_run_wait_seconds - time spent polling a run
//   - docrank_batch_duration_seconds - wall time of a batch
type Metrics struct {
	BatchesTotal   *prometheus.CounterVec
	DocumentsTotal *prometheus.CounterVec
	RunsTotal      *prometheus.CounterVec
	RunWait        prometheus.Histogram
	BatchDuration  prometheus.Histogram
}

func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			BatchesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "docrank_batches_total",
					Help: "Total number of document batches submitted",
				},
				[]string{"result"},
			),
			DocumentsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "docrank_documents_total",
					Help: "Total number of documents analyzed",
				},
				[]string{"outcome"},
			),
			RunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "docrank_runs_total",
					Help: "Total number of assistant runs by final state",
				},
				[]string{"outcome"},
			),
			RunWait: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "docrank_run_wait_seconds",
					Help:    "Time spent waiting for an assistant run",
					Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60, 90},
				},
			),
			BatchDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "docrank_batch_duration_seconds",
					Help:    "Wall time of a document batch",
					Buckets: prometheus.ExponentialBuckets(1, 2, 10),
				},
			),
		}
	})
	return globalMetrics
}

func (m *Metrics) ObserveRun(outcome string, wait time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunWait.Observe(wait.Seconds())
}

func (m *Metrics) ObserveBatch(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(result).Inc()
	if elapsed > 0 {
		m.BatchDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ObserveDocument(failed bool) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if failed {
		outcome = OutcomeError
	}
	m.DocumentsTotal.WithLabelValues(outcome).Inc()
}
