package apikey

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/signgate/internal/observability"
)

var tracer = otel.Tracer("signgate/apikey")

// Validator decides whether a request may proceed.
type Validator interface {
	// Validate returns the caller identity, or a *ValidationError.
	Validate(ctx context.Context, fields FieldSource) (*Identity, error)

	// Scheme returns the scheme the validator enforces.
	Scheme() Scheme

	// Source returns where the validator expects its fields.
	Source() string
}

// Option configures a validator.
type Option func(*options)

type options struct {
	logger  observability.Logger
	metrics *Metrics
	clock   func() time.Time
}

func defaultOptions() options {
	return options{
		logger: observability.NopLogger(),
		clock:  time.Now,
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// startSpan opens a validation span.
func startSpan(ctx context.Context, scheme Scheme) (context.Context, trace.Span) {
	return tracer.Start(ctx, "apikey.Validate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("apikey.scheme", string(scheme))),
	)
}

// finish records the outcome on the span and in metrics.
func finish(span trace.Span, m *Metrics, scheme Scheme, start time.Time, keyID string, err error) {
	if keyID != "" {
		span.SetAttributes(attribute.String("apikey.id", keyID))
	}
	if verr, ok := AsValidationError(err); ok {
		span.SetAttributes(attribute.String("apikey.error_kind", string(verr.Kind)))
		span.SetStatus(codes.Error, string(verr.Kind))
	}
	span.End()
	m.RecordValidation(scheme, err, time.Since(start))
}
