// Package metrics exposes the capture engine's incidental Prometheus
// observability: a frame-order counter, per-kind error counters, and a
// readiness-wait latency histogram. Grounded on smazurov-videonode's
// internal/metrics namespace/subsystem/name convention. None of this
// participates in the engine's functional contract - a caller that never
// scrapes /metrics is unaffected.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	frameOrder = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "v4l2capture",
		Subsystem: "engine",
		Name:      "frame_order_total",
		Help:      "Monotonic count of dequeue attempts, including timeouts (spec attempt-semantics).",
	}, []string{"device"})

	captureErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "v4l2capture",
		Subsystem: "engine",
		Name:      "capture_errors_total",
		Help:      "Logged-not-raised errors encountered during capture calls, by kind.",
	}, []string{"device", "kind"})

	readinessWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "v4l2capture",
		Subsystem: "engine",
		Name:      "readiness_wait_seconds",
		Help:      "Time spent in the select() readiness wait per capture call.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"device"})

	buffersInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "v4l2capture",
		Subsystem: "engine",
		Name:      "buffers_held_by_user",
		Help:      "Number of buffer slots currently held by the caller (MMAP mode).",
	}, []string{"device"})
)

// IncFrameOrder records one dequeue attempt for device.
func IncFrameOrder(device string) {
	frameOrder.WithLabelValues(device).Inc()
}

// IncCaptureError records one logged error of the given kind for device.
func IncCaptureError(device, kind string) {
	captureErrors.WithLabelValues(device, kind).Inc()
}

// ObserveReadinessWait records how long the select() wait took for device.
func ObserveReadinessWait(device string, seconds float64) {
	readinessWaitSeconds.WithLabelValues(device).Observe(seconds)
}

// SetBuffersHeld sets the current count of user-held buffer slots.
func SetBuffersHeld(device string, n int) {
	buffersInFlight.WithLabelValues(device).Set(float64(n))
}
