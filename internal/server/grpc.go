package server

import (
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	grpcmw "github.com/vyrodovalexey/signgate/internal/grpc/middleware"
	"github.com/vyrodovalexey/signgate/internal/observability"
)

// GRPCRegistrar registers application services on the gRPC server.
type GRPCRegistrar func(grpc.ServiceRegistrar)

// newGRPCServer builds a gRPC server whose calls pass recovery, request
// id and signature interceptors, in that order. The standard health
// service is always registered.
func newGRPCServer(
	checker grpcmw.Checker,
	logger observability.Logger,
	registrars []GRPCRegistrar,
) (*grpc.Server, *grpchealth.Server) {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpcmw.UnaryRecoveryInterceptor(logger),
			grpcmw.UnaryRequestIDInterceptor(),
			grpcmw.UnarySignatureInterceptor(checker),
		),
		grpc.ChainStreamInterceptor(
			grpcmw.StreamRecoveryInterceptor(logger),
			grpcmw.StreamRequestIDInterceptor(),
			grpcmw.StreamSignatureInterceptor(checker),
		),
	)

	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	for _, register := range registrars {
		register(srv)
	}

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return srv, hs
}
