package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "account-mirror/internal/health/handler"
)

// OpsDeps holds dependencies for the ops gRPC listener.
type OpsDeps struct {
	// Health backs grpc.health.v1. If nil, Check always reports SERVING.
	Health *healthhandler.Checker
}

// NewOpsServer returns a gRPC server with OpenTelemetry instrumentation and the ops services registered.
func NewOpsServer(deps OpsDeps, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers the ops gRPC services with the given server.
//
//   - grpc.health.v1.Health → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps OpsDeps) {
	healthpb.RegisterHealthServer(s, healthhandler.NewServer(deps.Health))
}
