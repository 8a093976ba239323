package middleware

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/vyrodovalexey/signgate/internal/observability"
)

// RequestIDHeader is the metadata key for request ID.
const RequestIDHeader = "x-request-id"

// UnaryRequestIDInterceptor returns a unary server interceptor that adds a request ID.
func UnaryRequestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		_ *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		return handler(ensureRequestID(ctx), req)
	}
}

// StreamRequestIDInterceptor returns a stream server interceptor that adds a request ID.
func StreamRequestIDInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		stream grpc.ServerStream,
		_ *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		return handler(srv, &contextServerStream{
			ServerStream: stream,
			ctx:          ensureRequestID(stream.Context()),
		})
	}
}

// ensureRequestID reuses the caller's request ID or generates one.
func ensureRequestID(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if values := md.Get(RequestIDHeader); len(values) > 0 && values[0] != "" {
			return observability.ContextWithRequestID(ctx, values[0])
		}
	}

	requestID := uuid.New().String()
	ctx = observability.ContextWithRequestID(ctx, requestID)

	if !ok {
		md = metadata.MD{}
	}
	md = md.Copy()
	md.Set(RequestIDHeader, requestID)

	return metadata.NewIncomingContext(ctx, md)
}

// contextServerStream overrides the context of a grpc.ServerStream.
type contextServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context.
func (s *contextServerStream) Context() context.Context {
	return s.ctx
}
