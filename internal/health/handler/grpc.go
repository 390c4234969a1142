package handler

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// checkTimeout bounds a single readiness probe across all dependencies.
const checkTimeout = 2 * time.Second

// Pinger checks connectivity to a dependency (e.g. *sqlx.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger (e.g. a Redis client's Ping).
type PingFunc func(ctx context.Context) error

// PingContext calls f(ctx).
func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// PolicyChecker checks that the login policy compiles and evaluates (e.g. *engine.OPAEvaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker runs readiness probes. Nil dependencies are skipped.
type Checker struct {
	db     Pinger
	cache  Pinger
	policy PolicyChecker
}

// NewChecker returns a readiness checker over the database, the OTP cache and the login policy.
func NewChecker(db, cache Pinger, policy PolicyChecker) *Checker {
	return &Checker{db: db, cache: cache, policy: policy}
}

// Check returns one entry per configured dependency; a nil value means healthy.
func (c *Checker) Check(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	out := make(map[string]error, 3)
	if c.db != nil {
		out["database"] = c.db.PingContext(ctx)
	}
	if c.cache != nil {
		out["cache"] = c.cache.PingContext(ctx)
	}
	if c.policy != nil {
		out["policy"] = c.policy.HealthCheck(ctx)
	}
	return out
}

// Ready reports whether every configured dependency is healthy.
func (c *Checker) Ready(ctx context.Context) (bool, map[string]error) {
	results := c.Check(ctx)
	for _, err := range results {
		if err != nil {
			return false, results
		}
	}
	return true, results
}

// Server implements grpc.health.v1 for the ops listener.
type Server struct {
	healthpb.UnimplementedHealthServer
	checker *Checker
}

// NewServer returns a gRPC health server. A nil checker always reports SERVING.
func NewServer(checker *Checker) *Server {
	return &Server{checker: checker}
}

// Check answers NOT_SERVING, never an RPC error, when a dependency is down.
// Only the overall ("") and "account-mirror" services are known.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	switch req.GetService() {
	case "", ServiceName:
	default:
		return nil, status.Error(codes.NotFound, fmt.Sprintf("unknown service %q", req.GetService()))
	}
	if s.checker == nil {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
	}
	if ok, _ := s.checker.Ready(ctx); !ok {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

// ServiceName is the service name reported by the health server.
const ServiceName = "account-mirror"
