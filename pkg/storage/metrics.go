package storage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for storage task execution.
type Metrics struct {
	attempts      *prometheus.CounterVec
	tasks         *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	inFlight      *prometheus.GaugeVec
	bufferedBytes *prometheus.CounterVec
}

// NewMetrics creates and registers storage metrics. A nil registerer uses the
// Prometheus default registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registry",
			Subsystem: "storage",
			Name:      "attempts_total",
			Help:      "Storage task attempts by outcome (ok, backoff, error)",
		}, []string{"bucket", "op", "outcome"}),
		tasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registry",
			Subsystem: "storage",
			Name:      "tasks_total",
			Help:      "Storage task chains by terminal result",
		}, []string{"bucket", "op", "result"}),
		taskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "registry",
			Subsystem: "storage",
			Name:      "task_duration_seconds",
			Help:      "Duration of storage task chains including backoff waits",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"bucket", "op"}),
		inFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "registry",
			Subsystem: "storage",
			Name:      "tasks_in_flight",
			Help:      "Storage task chains currently running",
		}, []string{"bucket", "op"}),
		bufferedBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registry",
			Subsystem: "storage",
			Name:      "stream_buffered_bytes_total",
			Help:      "Bytes of streamed uploads buffered in memory for a retry",
		}, []string{"bucket"}),
	}
}

// The methods below are safe to call on a nil *Metrics.

func (m *Metrics) observeAttempt(bucket, op, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(bucket, op, outcome).Inc()
}

func (m *Metrics) taskStarted(bucket, op string) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(bucket, op).Inc()
}

func (m *Metrics) taskFinished(bucket, op string, err error, dur time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.inFlight.WithLabelValues(bucket, op).Dec()
	m.tasks.WithLabelValues(bucket, op, result).Inc()
	m.taskDuration.WithLabelValues(bucket, op).Observe(dur.Seconds())
}

func (m *Metrics) observeBuffered(bucket string, n int) {
	if m == nil {
		return
	}
	m.bufferedBytes.WithLabelValues(bucket).Add(float64(n))
}
