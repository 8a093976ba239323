package apikey

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// resultAllowed labels admitted requests; rejections use their Kind.
const resultAllowed = "allowed"

// Metrics holds Prometheus metrics for key validation.
type Metrics struct {
	validationTotal    *prometheus.CounterVec
	validationDuration *prometheus.HistogramVec
}

// NewMetrics creates the validation metrics.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "signgate"
	}

	return &Metrics{
		validationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "apikey",
				Name:      "validation_total",
				Help:      "Total number of API key validation attempts",
			},
			[]string{"scheme", "result"},
		),
		validationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "apikey",
				Name:      "validation_duration_seconds",
				Help:      "API key validation duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"scheme", "result"},
		),
	}
}

// Init pre-initializes every label combination so the series show up
// before the first request.
func (m *Metrics) Init() {
	results := []string{
		resultAllowed,
		string(KindMissingCredential),
		string(KindUnknownKey),
		string(KindClockSkewExceeded),
		string(KindSignatureMismatch),
		string(KindReplayDetected),
		string(KindStoreUnavailable),
	}
	for _, scheme := range []Scheme{SchemeSimple, SchemeComplex} {
		for _, result := range results {
			m.validationTotal.WithLabelValues(string(scheme), result)
			m.validationDuration.WithLabelValues(string(scheme), result)
		}
	}
}

// Collectors returns every collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.validationTotal, m.validationDuration}
}

// RecordValidation records one validation outcome. A nil error counts as
// allowed.
func (m *Metrics) RecordValidation(scheme Scheme, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := resultLabel(err)
	m.validationTotal.WithLabelValues(string(scheme), result).Inc()
	m.validationDuration.WithLabelValues(string(scheme), result).Observe(duration.Seconds())
}

func resultLabel(err error) string {
	if err == nil {
		return resultAllowed
	}
	if verr, ok := AsValidationError(err); ok {
		return string(verr.Kind)
	}
	return "error"
}
