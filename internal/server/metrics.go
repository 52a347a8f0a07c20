package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the export counters on a private registry.
type Metrics struct {
	registry           *prometheus.Registry
	exportsStarted     prometheus.Counter
	exportsCompleted   prometheus.Counter
	exportsCancelled   prometheus.Counter
	exportsFailed      prometheus.Counter
	transcodeFallbacks prometheus.Counter
	framesRendered     prometheus.Counter
	activeExports      prometheus.Gauge
	exportDuration     prometheus.Histogram
}

// NewMetrics creates and registers the export metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		exportsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "retroclip_exports_started_total",
			Help: "Total number of exports accepted",
		}),
		exportsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "retroclip_exports_completed_total",
			Help: "Total number of exports delivered",
		}),
		exportsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "retroclip_exports_cancelled_total",
			Help: "Total number of exports cancelled before delivery",
		}),
		exportsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "retroclip_exports_failed_total",
			Help: "Total number of exports that failed",
		}),
		transcodeFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "retroclip_transcode_fallbacks_total",
			Help: "Total number of exports delivered untranscoded after a transcode failure",
		}),
		framesRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "retroclip_frames_rendered_total",
			Help: "Total number of frames submitted to encoders",
		}),
		activeExports: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "retroclip_active_exports",
			Help: "Number of exports currently running",
		}),
		exportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "retroclip_export_duration_seconds",
			Help:    "Wall-clock duration of delivered exports",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}

	registry.MustRegister(
		m.exportsStarted,
		m.exportsCompleted,
		m.exportsCancelled,
		m.exportsFailed,
		m.transcodeFallbacks,
		m.framesRendered,
		m.activeExports,
		m.exportDuration,
	)
	return m
}

func (m *Metrics) started() {
	m.exportsStarted.Inc()
	m.activeExports.Inc()
}

func (m *Metrics) finished(outcome jobStatus, frames int, seconds float64, fallback bool) {
	m.activeExports.Dec()
	m.framesRendered.Add(float64(frames))
	switch outcome {
	case statusCompleted:
		m.exportsCompleted.Inc()
		m.exportDuration.Observe(seconds)
		if fallback {
			m.transcodeFallbacks.Inc()
		}
	case statusCancelled:
		m.exportsCancelled.Inc()
	default:
		m.exportsFailed.Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
