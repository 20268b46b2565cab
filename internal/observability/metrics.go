package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records engine and generator activity. A nil *Metrics is a no-op.
type Metrics struct {
	turns             *prometheus.CounterVec
	generatorLatency  *prometheus.HistogramVec
	generatorFailures *prometheus.CounterVec
	sessionsStarted   prometheus.Counter
	sessionsFinished  *prometheus.CounterVec
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide recorder on the default registry.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetrics registers the collectors on reg. Tests pass a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pitcharena",
			Subsystem: "engine",
			Name:      "turns_total",
			Help:      "Investor turns applied, by backend and parse outcome",
		}, []string{"backend", "outcome"}),
		generatorLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pitcharena",
			Subsystem: "generator",
			Name:      "latency_seconds",
			Help:      "Wall time of a generator call including retries",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"backend"}),
		generatorFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pitcharena",
			Subsystem: "generator",
			Name:      "failures_total",
			Help:      "Generator calls that exhausted retries or were cancelled",
		}, []string{"backend"}),
		sessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pitcharena",
			Subsystem: "engine",
			Name:      "sessions_started_total",
			Help:      "Pitch sessions created",
		}),
		sessionsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pitcharena",
			Subsystem: "engine",
			Name:      "sessions_finished_total",
			Help:      "Pitch sessions that reached a terminal status",
		}, []string{"status"}),
	}
}

// RecordTurn counts an applied investor turn. outcome is "parsed" or "degraded".
func (m *Metrics) RecordTurn(backend, outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(backend, outcome).Inc()
}

// ObserveGenerator records the latency of one generator call and whether it failed.
func (m *Metrics) ObserveGenerator(backend string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.generatorLatency.WithLabelValues(backend).Observe(d.Seconds())
	if failed {
		m.generatorFailures.WithLabelValues(backend).Inc()
	}
}

// RecordSessionStarted counts a created session.
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

// RecordSessionFinished counts a session entering a terminal status.
func (m *Metrics) RecordSessionFinished(status string) {
	if m == nil {
		return
	}
	m.sessionsFinished.WithLabelValues(status).Inc()
}
