// Package middleware provides gRPC interceptors for the signgate server.
//
// The signature interceptors run the same protection registry and
// validators as the HTTP gate against the full method name of each call,
// reading credentials from the incoming metadata. Rejections map onto
// gRPC status codes:
//
//   - ReplayDetected: codes.PermissionDenied
//   - StoreUnavailable: codes.Unavailable
//   - every other kind: codes.Unauthenticated
//
// Example usage:
//
//	srv := grpc.NewServer(
//	    grpc.ChainUnaryInterceptor(
//	        middleware.UnaryRecoveryInterceptor(logger),
//	        middleware.UnaryRequestIDInterceptor(),
//	        middleware.UnarySignatureInterceptor(gate),
//	    ),
//	    grpc.ChainStreamInterceptor(
//	        middleware.StreamRecoveryInterceptor(logger),
//	        middleware.StreamRequestIDInterceptor(),
//	        middleware.StreamSignatureInterceptor(gate),
//	    ),
//	)
package middleware
