// Package metrics provides Prometheus metrics for the poster pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Export result label values.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Manager owns every metric of the process. A nil *Manager is valid and
// records nothing, so components can take one optionally.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	fieldUpdates     prometheus.Counter
	avatarsIngested  prometheus.Counter
	avatarsRejected  *prometheus.CounterVec
	previewRebuilds  prometheus.Counter
	activeSessions   prometheus.Gauge
	exports          *prometheus.CounterVec
	exportFailures   *prometheus.CounterVec
	exportDuration   prometheus.Histogram
	exportSizeBytes  prometheus.Histogram
	rasterizeLatency prometheus.Histogram
}

// NewManager creates a metrics manager. Without WithRegistry it registers on
// a private registry, which keeps the Go runtime collectors out of /metrics.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "goposter",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.fieldUpdates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "field_updates_total",
		Help:      "Number of form field values that actually changed",
	})
	m.avatarsIngested = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "avatars_ingested_total",
		Help:      "Number of avatar images accepted and stored as data URIs",
	})
	m.avatarsRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "avatars_rejected_total",
		Help:      "Number of avatar images rejected, by reason",
	}, []string{"reason"})
	m.previewRebuilds = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "preview_rebuilds_total",
		Help:      "Number of times the preview tree was rebuilt",
	})
	m.activeSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_sessions",
		Help:      "Number of live editing sessions",
	})
	m.exports = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "exports_total",
		Help:      "Number of export attempts, by result",
	}, []string{"result"})
	m.exportFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "export_failures_total",
		Help:      "Number of failed exports, by pipeline stage",
	}, []string{"stage"})
	m.exportDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "export_duration_seconds",
		Help:      "Wall time of a capture and export task",
		Buckets:   m.histogramBuckets,
	})
	m.exportSizeBytes = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "export_size_bytes",
		Help:      "Size of exported JPEG files",
		Buckets:   prometheus.ExponentialBuckets(16<<10, 2, 8),
	})
	m.rasterizeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rasterize_duration_seconds",
		Help:      "Time spent rasterizing a preview subtree",
		Buckets:   m.histogramBuckets,
	})
}

// Registry returns the registry the metrics are registered on.
func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an http.Handler serving the registry in the Prometheus
// exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordFieldUpdates adds n changed fields.
func (m *Manager) RecordFieldUpdates(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.fieldUpdates.Add(float64(n))
}

// RecordAvatarIngested counts an accepted avatar.
func (m *Manager) RecordAvatarIngested() {
	if m == nil {
		return
	}
	m.avatarsIngested.Inc()
}

// RecordAvatarRejected counts a rejected avatar under reason.
func (m *Manager) RecordAvatarRejected(reason string) {
	if m == nil {
		return
	}
	m.avatarsRejected.WithLabelValues(reason).Inc()
}

// RecordPreviewRebuild counts a preview tree rebuild.
func (m *Manager) RecordPreviewRebuild() {
	if m == nil {
		return
	}
	m.previewRebuilds.Inc()
}

// SetActiveSessions updates the live session gauge.
func (m *Manager) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// RecordRasterize observes how long one rasterization took.
func (m *Manager) RecordRasterize(d time.Duration) {
	if m == nil {
		return
	}
	m.rasterizeLatency.Observe(d.Seconds())
}

// RecordExport observes a finished export. stage is empty on success.
func (m *Manager) RecordExport(d time.Duration, size int, stage string) {
	if m == nil {
		return
	}
	m.exportDuration.Observe(d.Seconds())
	if stage != "" {
		m.exports.WithLabelValues(ResultFailed).Inc()
		m.exportFailures.WithLabelValues(stage).Inc()
		return
	}
	m.exports.WithLabelValues(ResultOK).Inc()
	m.exportSizeBytes.Observe(float64(size))
}
