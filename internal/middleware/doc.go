// Package middleware provides the HTTP middleware of the signgate server.
//
// The central piece is Gate, which looks up the protection binding of the
// request path and runs the matching API key validator before the handler.
// Rejections are answered with a JSON body of the form
//
//	{"error_kind": "ReplayDetected", "message": "nonce already used"}
//
// and the status code of the rejection kind.
//
// Supporting middleware:
//
//   - RequestID: unique request identifier injection
//   - Recovery: panic recovery with stack trace logging
//   - Logging: structured access logging
//   - RateLimit: token bucket rate limiter, global or per client
//   - Tracing: OpenTelemetry server spans with W3C context propagation
//
// Middleware functions follow the standard Go pattern:
//
//	handler := middleware.Recovery(logger, nil)(
//	    middleware.RequestID()(
//	        middleware.Logging(logger, metrics)(gate.HTTP()(mux)),
//	    ),
//	)
package middleware
