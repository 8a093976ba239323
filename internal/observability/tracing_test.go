package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

func TestNewTracer_Disabled(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(context.Background(), TracerConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, tracer.provider)
	assert.Equal(t, "signgate", tracer.config.ServiceName)

	ctx, span := tracer.StartSpan(context.Background(), "noop")
	assert.NotNil(t, ctx)
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestNewTracer_EnabledWithoutExporter(t *testing.T) {
	tracer, err := NewTracer(context.Background(), TracerConfig{
		Enabled:      true,
		ServiceName:  "signgate-test",
		SamplingRate: 1.0,
	})
	require.NoError(t, err)
	require.NotNil(t, tracer.provider)

	_, span := tracer.StartSpan(context.Background(), "validate")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestNewResource(t *testing.T) {
	t.Parallel()

	res, err := newResource("signgate-test")
	require.NoError(t, err)

	got, ok := res.Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, "signgate-test", got.AsString())
	assert.Equal(t, resource.Default().SchemaURL(), res.SchemaURL())
}

func TestCreateSampler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rate float64
		want string
	}{
		{name: "always", rate: 1.0, want: sdktrace.AlwaysSample().Description()},
		{name: "never", rate: 0, want: sdktrace.NeverSample().Description()},
		{name: "ratio", rate: 0.5, want: sdktrace.TraceIDRatioBased(0.5).Description()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, createSampler(tt.rate).Description())
		})
	}
}
