package health

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for readiness checks. A nil *Metrics
// records nothing.
type Metrics struct {
	checksTotal *prometheus.CounterVec
	checkStatus *prometheus.GaugeVec
}

// NewMetrics creates the health metrics.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "signgate"
	}

	return &Metrics{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "checks_total",
				Help:      "Total number of readiness checks performed",
			},
			[]string{"check", "result"},
		),
		checkStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "check_status",
				Help: "Current health check " +
					"status (1=healthy, 0=unhealthy)",
			},
			[]string{"check"},
		),
	}
}

// Collectors returns every collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.checksTotal, m.checkStatus}
}

func (m *Metrics) recordCheck(name string, healthy bool) {
	if m == nil {
		return
	}
	result, value := "success", 1.0
	if !healthy {
		result, value = "failure", 0
	}
	m.checksTotal.WithLabelValues(name, result).Inc()
	m.checkStatus.WithLabelValues(name).Set(value)
}

func (m *Metrics) recordOverall(status Status) {
	if m == nil {
		return
	}
	value := 0.0
	if status != StatusUnhealthy {
		value = 1
	}
	m.checkStatus.WithLabelValues("overall").Set(value)
}
