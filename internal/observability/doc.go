// Package observability provides logging, metrics, and tracing
// functionality for signgate.
//
// # Logging
//
// The Logger interface provides structured logging backed by zap:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request rejected",
//	    observability.String("error_kind", "ReplayDetected"),
//	)
//
// # Metrics
//
// Metrics owns the process-wide Prometheus registry. Component metrics
// (validation, nonce store) register into it at startup:
//
//	metrics := observability.NewMetrics("signgate")
//	http.Handle("/metrics", metrics.Handler())
//
// # Tracing
//
// OpenTelemetry tracing with optional OTLP gRPC export:
//
//	tracer, err := observability.NewTracer(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tracer.Shutdown(ctx)
package observability
