// Package metrics exposes capture and overlay counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "posecam"

// Metrics holds the collectors on a private registry. It satisfies both
// camera.Stats and overlay.Stats.
type Metrics struct {
	registry *prometheus.Registry

	framesCaptured  prometheus.Counter
	framesDropped   *prometheus.CounterVec
	framesDisplayed prometheus.Counter
	estimateFailed  *prometheus.CounterVec
	estimateLatency prometheus.Histogram
	detections      prometheus.Gauge

	memUsage prometheus.Gauge
	cpuUsage prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_captured_total",
			Help:      "Frames read from the camera device",
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames discarded before reaching the listener",
		}, []string{"reason"}),
		framesDisplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_displayed_total",
			Help:      "Frames handed to displays",
		}),
		estimateFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pose_estimate_failures_total",
			Help:      "Pose estimation calls that returned an error",
		}, []string{"reason"}),
		estimateLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pose_estimate_seconds",
			Help:      "Pose estimation latency",
			Buckets:   []float64{0.005, 0.01, 0.02, 0.035, 0.05, 0.075, 0.1, 0.2, 0.5, 1},
		}),
		detections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pose_detections",
			Help:      "Bodies found in the most recent frame",
		}),
		memUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_usage_megabytes",
			Help:      "Resident memory in megabytes",
		}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_usage_percent",
			Help:      "CPU usage in percent",
		}),
	}

	m.registry.MustRegister(
		m.framesCaptured, m.framesDropped, m.framesDisplayed,
		m.estimateFailed, m.estimateLatency, m.detections,
		m.memUsage, m.cpuUsage,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// FrameCaptured implements camera.Stats.
func (m *Metrics) FrameCaptured() { m.framesCaptured.Inc() }

// FrameDropped implements camera.Stats.
func (m *Metrics) FrameDropped(reason string) { m.framesDropped.WithLabelValues(reason).Inc() }

// FrameDisplayed implements overlay.Stats.
func (m *Metrics) FrameDisplayed() { m.framesDisplayed.Inc() }

// EstimateFailed implements overlay.Stats.
func (m *Metrics) EstimateFailed(reason string) { m.estimateFailed.WithLabelValues(reason).Inc() }

// EstimateDuration implements overlay.Stats.
func (m *Metrics) EstimateDuration(d time.Duration) { m.estimateLatency.Observe(d.Seconds()) }

// Detections implements overlay.Stats.
func (m *Metrics) Detections(n int) { m.detections.Set(float64(n)) }
