package observability

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	traceIDKey
	spanIDKey
	keyIDKey
)

// contextLogFields lists the context values WithContext copies into log
// entries, in output order.
var contextLogFields = []struct {
	key  ctxKey
	name string
}{
	{requestIDKey, "request_id"},
	{traceIDKey, "trace_id"},
	{spanIDKey, "span_id"},
	{keyIDKey, "key_id"},
}

func contextFields(ctx context.Context) []Field {
	var fields []Field
	for _, f := range contextLogFields {
		if v := stringValue(ctx, f.key); v != "" {
			fields = append(fields, String(f.name, v))
		}
	}
	return fields
}

func stringValue(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// ContextWithRequestID stores the request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// ContextWithTraceID stores the trace id.
func ContextWithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// TraceIDFromContext returns the trace id, or "".
func TraceIDFromContext(ctx context.Context) string {
	return stringValue(ctx, traceIDKey)
}

// ContextWithSpanID stores the span id.
func ContextWithSpanID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, spanIDKey, id)
}

// SpanIDFromContext returns the span id, or "".
func SpanIDFromContext(ctx context.Context) string {
	return stringValue(ctx, spanIDKey)
}

// ContextWithKeyID stores the id of the API key that authenticated the
// request. Simple-scheme tokens must not be passed here unmasked.
func ContextWithKeyID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyIDKey, id)
}

// KeyIDFromContext returns the authenticated key id, or "".
func KeyIDFromContext(ctx context.Context) string {
	return stringValue(ctx, keyIDKey)
}
