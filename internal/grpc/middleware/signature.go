package middleware

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vyrodovalexey/signgate/internal/apikey"
)

// Checker decides whether a call to path may proceed. The HTTP gate
// satisfies it.
type Checker interface {
	Check(ctx context.Context, path string, fields apikey.FieldSource) (*apikey.Identity, *apikey.ValidationError, bool)
}

// UnarySignatureInterceptor rejects unary calls to protected methods that
// fail API key validation.
func UnarySignatureInterceptor(checker Checker) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := authorize(ctx, checker, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamSignatureInterceptor rejects streams to protected methods that
// fail API key validation.
func StreamSignatureInterceptor(checker Checker) grpc.StreamServerInterceptor {
	return func(
		srv any,
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := authorize(stream.Context(), checker, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &contextServerStream{ServerStream: stream, ctx: ctx})
	}
}

func authorize(ctx context.Context, checker Checker, method string) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)

	id, verr, _ := checker.Check(ctx, method, apikey.MetadataSource(md))
	if verr != nil {
		return ctx, status.Error(StatusCode(verr.Kind), verr.Message)
	}
	if id != nil {
		ctx = apikey.ContextWithIdentity(ctx, id)
	}
	return ctx, nil
}

// StatusCode maps a rejection kind onto a gRPC status code.
func StatusCode(kind apikey.Kind) codes.Code {
	switch kind {
	case apikey.KindReplayDetected:
		return codes.PermissionDenied
	case apikey.KindStoreUnavailable:
		return codes.Unavailable
	default:
		return codes.Unauthenticated
	}
}
