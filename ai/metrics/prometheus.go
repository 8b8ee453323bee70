// Package metrics provides Prometheus metrics export for the chat client and title service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stream outcomes.
const (
	OutcomeFinalized = "finalized"
	OutcomeErrored   = "errored"
	OutcomeCancelled = "cancelled"
)

// PrometheusExporter exports chat metrics in Prometheus format.
// All Record methods are safe to call on a nil exporter.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Stream metrics
	streamsStarted  *prometheus.CounterVec
	streamsFinished *prometheus.CounterVec
	streamDuration  *prometheus.HistogramVec
	streamChunks    prometheus.Counter
	streamsActive   prometheus.Gauge

	// Title generation metrics
	titleRequests *prometheus.CounterVec
	titleLatency  prometheus.Histogram

	// Persistence metrics
	persistWrites *prometheus.CounterVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.streamsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xflo",
			Subsystem: "chat",
			Name:      "streams_started_total",
			Help:      "Total number of streaming replies opened",
		},
		[]string{"transport"},
	)

	e.streamsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xflo",
			Subsystem: "chat",
			Name:      "streams_finished_total",
			Help:      "Total number of streaming replies by outcome",
		},
		[]string{"transport", "outcome"},
	)

	e.streamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "xflo",
			Subsystem: "chat",
			Name:      "stream_duration_seconds",
			Help:      "Wall-clock duration of streaming replies",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"transport"},
	)

	e.streamChunks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "xflo",
			Subsystem: "chat",
			Name:      "stream_chunks_total",
			Help:      "Total number of content deltas applied",
		},
	)

	e.streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "xflo",
			Subsystem: "chat",
			Name:      "streams_active",
			Help:      "Number of streams currently open",
		},
	)

	e.titleRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xflo",
			Subsystem: "title",
			Name:      "requests_total",
			Help:      "Total number of title generation requests",
		},
		[]string{"status"},
	)

	e.titleLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "xflo",
			Subsystem: "title",
			Name:      "latency_seconds",
			Help:      "Title generation latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	e.persistWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xflo",
			Subsystem: "store",
			Name:      "persist_writes_total",
			Help:      "Total number of chat store snapshot writes",
		},
		[]string{"status"},
	)

	registry.MustRegister(
		e.streamsStarted,
		e.streamsFinished,
		e.streamDuration,
		e.streamChunks,
		e.streamsActive,
		e.titleRequests,
		e.titleLatency,
		e.persistWrites,
	)

	return e
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordStreamStarted records a stream being opened.
func (e *PrometheusExporter) RecordStreamStarted(transport string) {
	if e == nil {
		return
	}
	e.streamsStarted.WithLabelValues(transport).Inc()
	e.streamsActive.Inc()
}

// RecordStreamFinished records the terminal outcome of a stream.
func (e *PrometheusExporter) RecordStreamFinished(transport, outcome string, duration time.Duration) {
	if e == nil {
		return
	}
	e.streamsFinished.WithLabelValues(transport, outcome).Inc()
	e.streamDuration.WithLabelValues(transport).Observe(duration.Seconds())
	e.streamsActive.Dec()
}

// RecordChunk records one applied content delta.
func (e *PrometheusExporter) RecordChunk() {
	if e == nil {
		return
	}
	e.streamChunks.Inc()
}

// RecordTitleRequest records a title generation attempt.
func (e *PrometheusExporter) RecordTitleRequest(latency time.Duration, success bool) {
	if e == nil {
		return
	}
	e.titleRequests.WithLabelValues(status(success)).Inc()
	e.titleLatency.Observe(latency.Seconds())
}

// RecordPersist implements store.PersistRecorder.
func (e *PrometheusExporter) RecordPersist(err error) {
	if e == nil {
		return
	}
	e.persistWrites.WithLabelValues(status(err == nil)).Inc()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// GetRegistry returns the Prometheus registry.
func (e *PrometheusExporter) GetRegistry() *prometheus.Registry {
	return e.registry
}
