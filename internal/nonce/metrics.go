package nonce

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation results used as metric labels.
const (
	resultFresh       = "fresh"
	resultReplay      = "replay"
	resultError       = "error"
	resultUnavailable = "unavailable"
)

// Metrics holds Prometheus metrics for nonce store operations.
// A nil *Metrics records nothing.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	entries           prometheus.Gauge
	breakerState      prometheus.Gauge
	connectRetries    prometheus.Counter
}

// NewMetrics creates the nonce store metrics. They are registered by the
// caller through Collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "signgate"
	}

	return &Metrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "nonce_store",
				Name:      "operations_total",
				Help:      "Total number of nonce check-and-set operations",
			},
			[]string{"backend", "result"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "nonce_store",
				Name:      "operation_duration_seconds",
				Help:      "Duration of nonce check-and-set operations in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"backend"},
		),
		entries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "nonce_store",
				Name:      "entries",
				Help:      "Number of nonces held by the in-memory store",
			},
		),
		breakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "nonce_store",
				Name:      "circuit_breaker_state",
				Help:      "Redis circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
		),
		connectRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "nonce_store",
				Name:      "connection_retries_total",
				Help:      "Total number of redis connection retry attempts",
			},
		),
	}
}

// Collectors returns every collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.entries,
		m.breakerState,
		m.connectRetries,
	}
}

func (m *Metrics) recordOperation(backend, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(backend, result).Inc()
	m.operationDuration.WithLabelValues(backend).Observe(d.Seconds())
}

func (m *Metrics) setEntries(n int) {
	if m == nil {
		return
	}
	m.entries.Set(float64(n))
}

func (m *Metrics) setBreakerState(state int) {
	if m == nil {
		return
	}
	m.breakerState.Set(float64(state))
}

func (m *Metrics) incConnectRetries() {
	if m == nil {
		return
	}
	m.connectRetries.Inc()
}
