package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for signature runs.
type Metrics struct {
	BlocksReadTotal            prometheus.Counter
	BlocksWrittenTotal         prometheus.Counter
	BytesReadTotal             prometheus.Counter
	BytesWrittenTotal          prometheus.Counter
	DrainsTotal                prometheus.Counter
	RetriesTotal               *prometheus.CounterVec
	ConsistencyViolationsTotal prometheus.Counter
	ReorderBufferDepth         prometheus.Gauge
	RunsTotal                  *prometheus.CounterVec
	RunDuration                prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewMetrics creates all metrics and registers them on reg. A nil reg gets a
// private registry, so several instances can coexist in one process.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		BlocksReadTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "blocksig_blocks_read_total",
			Help: "Blocks read from the input",
		}),
		BlocksWrittenTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "blocksig_blocks_written_total",
			Help: "Checksums written to the signature",
		}),
		BytesReadTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "blocksig_bytes_read_total",
			Help: "Input bytes read",
		}),
		BytesWrittenTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "blocksig_bytes_written_total",
			Help: "Signature bytes written",
		}),
		DrainsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "blocksig_drains_total",
			Help: "Non-empty drains of the reorder buffer",
		}),
		RetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "blocksig_retries_total",
			Help: "Transient failures retried",
		}, []string{"site"}),
		ConsistencyViolationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "blocksig_consistency_violations_total",
			Help: "Ordering invariant violations detected",
		}),
		ReorderBufferDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "blocksig_reorder_buffer_depth",
			Help: "Completed checksums waiting to be written",
		}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "blocksig_runs_total",
			Help: "Signature runs by outcome",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "blocksig_run_duration_seconds",
			Help:    "Signature run duration",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 1800},
		}),
		gatherer: reg,
	}
}

// RecordBlockRead updates metrics for a block taken from the input.
func (m *Metrics) RecordBlockRead(bytes int) {
	m.BlocksReadTotal.Inc()
	m.BytesReadTotal.Add(float64(bytes))
}

// RecordDrain updates metrics after a batch was written.
func (m *Metrics) RecordDrain(records int, buffered int) {
	m.ReorderBufferDepth.Set(float64(buffered))
	if records == 0 {
		return
	}
	m.DrainsTotal.Inc()
	m.BlocksWrittenTotal.Add(float64(records))
	m.BytesWrittenTotal.Add(float64(records * 4))
}

// RecordRetry counts a retried transient failure.
func (m *Metrics) RecordRetry(site string) {
	m.RetriesTotal.WithLabelValues(site).Inc()
}

// RecordConsistencyViolation counts a broken ordering invariant.
func (m *Metrics) RecordConsistencyViolation() {
	m.ConsistencyViolationsTotal.Inc()
}

// RecordRun records the outcome of a run.
func (m *Metrics) RecordRun(success bool, durationSeconds float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(durationSeconds)
}

// Handler exposes the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
