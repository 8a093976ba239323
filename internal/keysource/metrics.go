package keysource

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/signgate/internal/apikey"
)

// Metrics holds Prometheus metrics for key loading. A nil *Metrics
// records nothing.
type Metrics struct {
	loadsTotal *prometheus.CounterVec
	keys       *prometheus.GaugeVec
}

// NewMetrics creates the key source metrics.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "signgate"
	}

	return &Metrics{
		loadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "keysource",
				Name:      "loads_total",
				Help:      "Total number of key source loads",
			},
			[]string{"source", "result"},
		),
		keys: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "keysource",
				Name:      "keys",
				Help:      "Number of registered API keys",
			},
			[]string{"scheme"},
		),
	}
}

// Collectors returns every collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.loadsTotal, m.keys}
}

func (m *Metrics) recordLoad(source string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.loadsTotal.WithLabelValues(source, result).Inc()
}

func (m *Metrics) setKeys(r *apikey.Registry) {
	if m == nil {
		return
	}
	for _, scheme := range []apikey.Scheme{apikey.SchemeSimple, apikey.SchemeComplex} {
		m.keys.WithLabelValues(string(scheme)).Set(float64(r.Count(scheme)))
	}
}
