package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the conduit gateway.
type Metrics struct {
	RequestTotal      *prometheus.CounterVec
	RequestDurationMs *prometheus.HistogramVec
	StageDurationMs   *prometheus.HistogramVec
	StageErrorTotal   *prometheus.CounterVec
	HandlerTotal      *prometheus.CounterVec
	StreamAbortTotal  prometheus.Counter
	RateLimitHitTotal prometheus.Counter
	CitationsTotal    prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "conduit_request_total",
			Help: "Total number of chat requests processed by the gateway.",
		}, []string{"model", "status", "stream"}),

		RequestDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conduit_request_duration_ms",
			Help:    "Total request duration in milliseconds (including upstream latency).",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"model", "stream"}),

		StageDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conduit_stage_duration_ms",
			Help:    "Per-stage pipeline execution time in milliseconds.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000, 5000},
		}, []string{"stage"}),

		StageErrorTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "conduit_stage_error_total",
			Help: "Total pipeline stage errors (recorded, not fatal).",
		}, []string{"stage"}),

		HandlerTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "conduit_handler_total",
			Help: "Total responses produced, by handler.",
		}, []string{"handler"}),

		StreamAbortTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conduit_stream_abort_total",
			Help: "Total streams aborted by client disconnect.",
		}),

		RateLimitHitTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conduit_rate_limit_hit_total",
			Help: "Total requests rejected by the rate limiter.",
		}),

		CitationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conduit_citations_total",
			Help: "Total citations parsed from upstream streams.",
		}),
	}
}

// RecordRequest records metrics for a completed request.
func (m *Metrics) RecordRequest(labels RequestLabels) {
	stream := "false"
	if labels.Stream {
		stream = "true"
	}
	m.RequestTotal.WithLabelValues(labels.Model, labels.Status, stream).Inc()
	m.RequestDurationMs.WithLabelValues(labels.Model, stream).Observe(labels.DurationMs)
}

// RecordStage records per-stage pipeline timing.
func (m *Metrics) RecordStage(stage string, durationMs float64) {
	m.StageDurationMs.WithLabelValues(stage).Observe(durationMs)
}

// RecordStageError records a non-fatal pipeline stage error.
func (m *Metrics) RecordStageError(stage string) {
	m.StageErrorTotal.WithLabelValues(stage).Inc()
}

// RecordHandler records which handler produced the response.
func (m *Metrics) RecordHandler(handler string) {
	m.HandlerTotal.WithLabelValues(handler).Inc()
}

// RecordStreamAbort records a client-initiated stream abort.
func (m *Metrics) RecordStreamAbort() {
	m.StreamAbortTotal.Inc()
}

// RecordRateLimitHit records a rate-limited request.
func (m *Metrics) RecordRateLimitHit() {
	m.RateLimitHitTotal.Inc()
}

// RecordCitations records parsed citations.
func (m *Metrics) RecordCitations(n int) {
	if n > 0 {
		m.CitationsTotal.Add(float64(n))
	}
}

// RequestLabels holds the label values for recording a request.
type RequestLabels struct {
	Model      string
	Status     string
	Stream     bool
	DurationMs float64
}
