// Package telemetry wires Prometheus metrics and OpenTelemetry spans onto
// the observation stream a runner emits, in place of hand-rolled counters.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the counters/histograms fed from runner observations.
type Metrics struct {
	registry *prometheus.Registry

	operationRuns     *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	impactBlocks      *prometheus.CounterVec
	queueDepth        prometheus.Gauge
	recoveryRuns      *prometheus.CounterVec
}

// NewMetrics registers a fresh metric set on its own registry, so a test or
// a second runner in the same process never collides with the default
// global registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		operationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoscript_operation_runs_total",
			Help: "Count of terminal operation outcomes, labeled by operation id and status.",
		}, []string{"operation_id", "status"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autoscript_operation_duration_seconds",
			Help:    "Wall-clock duration of one operation run (all attempts), in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation_id"}),
		impactBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoscript_impact_blocks_total",
			Help: "Count of impact-engine blocking decisions, labeled by scope.",
		}, []string{"scope"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autoscript_scheduler_queue_depth",
			Help: "Number of operations currently enqueued on the runner's serial queue.",
		}),
		recoveryRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoscript_recovery_runs_total",
			Help: "Count of recovery run outcomes, labeled by operation id and result code.",
		}, []string{"operation_id", "code"}),
	}

	reg.MustRegister(m.operationRuns, m.operationDuration, m.impactBlocks, m.queueDepth, m.recoveryRuns)
	return m
}

// Handler exposes the metric set over HTTP, for a process-level /metrics
// endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordOperationRun records one terminal operation outcome and its total
// attempt-loop duration.
func (m *Metrics) RecordOperationRun(operationID, status string, durationSeconds float64) {
	m.operationRuns.WithLabelValues(operationID, status).Inc()
	m.operationDuration.WithLabelValues(operationID).Observe(durationSeconds)
}

// RecordImpact records one impact-engine blocking decision.
func (m *Metrics) RecordImpact(scope string) {
	if scope == "" || scope == "none" {
		return
	}
	m.impactBlocks.WithLabelValues(scope).Inc()
}

// RecordRecovery records one recovery run outcome (all of its passes).
func (m *Metrics) RecordRecovery(operationID, code string) {
	m.recoveryRuns.WithLabelValues(operationID, code).Inc()
}

// SetQueueDepth reports the current serial-queue backlog.
func (m *Metrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}
