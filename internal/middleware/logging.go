package middleware

import (
	"net/http"
	"time"

	"github.com/vyrodovalexey/signgate/internal/observability"
)

// responseWriter wraps http.ResponseWriter to capture status code and size.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size.
func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Flush implements http.Flusher interface for streaming support.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RouteFunc resolves the route label of a request. Returning "" records
// the request as unmatched.
type RouteFunc func(r *http.Request) string

// Logging returns a middleware that logs every request and, when metrics
// is set, records it in the HTTP request metrics.
func Logging(logger observability.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return LoggingWithRoute(logger, metrics, nil)
}

// LoggingWithRoute is Logging with a custom route label resolver.
func LoggingWithRoute(
	logger observability.Logger,
	metrics *observability.Metrics,
	route RouteFunc,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				status:         http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)

			//nolint:contextcheck // request context carries the request id
			logger.Info("http request",
				observability.String("method", r.Method),
				observability.String("path", r.URL.Path),
				observability.Int("status", rw.status),
				observability.Int("size", rw.size),
				observability.Duration("duration", duration),
				observability.String("remote_addr", r.RemoteAddr),
				observability.String("user_agent", r.UserAgent()),
				observability.String("request_id", observability.RequestIDFromContext(r.Context())),
			)

			if metrics != nil {
				label := ""
				if route != nil {
					label = route(r)
				}
				metrics.RecordRequest(r.Method, label, rw.status, duration)
			}
		})
	}
}
