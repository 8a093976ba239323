package middleware

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/signgate/internal/apikey"
)

// Metrics holds Prometheus metrics for middleware operations. A nil
// *Metrics records nothing.
type Metrics struct {
	gateDecisions     *prometheus.CounterVec
	rateLimitRejected prometheus.Counter
	panicsRecovered   prometheus.Counter
}

// NewMetrics creates the middleware metrics.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "signgate"
	}

	return &Metrics{
		gateDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "middleware",
				Name:      "gate_decisions_total",
				Help: "Total number of signature gate " +
					"decisions by scheme and outcome",
			},
			[]string{"scheme", "outcome"},
		),
		rateLimitRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "middleware",
				Name:      "rate_limit_rejected_total",
				Help: "Total number of requests " +
					"rejected by rate limiter",
			},
		),
		panicsRecovered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "middleware",
				Name:      "panics_recovered_total",
				Help:      "Total number of panics recovered",
			},
		),
	}
}

// Collectors returns every collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.gateDecisions, m.rateLimitRejected, m.panicsRecovered}
}

func (m *Metrics) recordDecision(scheme apikey.Scheme, outcome string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(string(scheme), outcome).Inc()
}

func (m *Metrics) recordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimitRejected.Inc()
}

func (m *Metrics) recordPanic() {
	if m == nil {
		return
	}
	m.panicsRecovered.Inc()
}
