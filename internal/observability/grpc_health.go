package observability

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealth serves the standard grpc.health.v1 protocol so orchestrators
// can probe the gateway without HTTP.
type GRPCHealth struct {
	server *grpc.Server
	health *health.Server
	checks map[string]HealthCheckFunc
}

// NewGRPCHealth registers a health service whose per-service status follows
// the given readiness checks. The empty service name reflects all of them.
func NewGRPCHealth(checks map[string]HealthCheckFunc) *GRPCHealth {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &GRPCHealth{server: srv, health: hs, checks: checks}
}

// Refresh runs the checks once and publishes the results.
func (g *GRPCHealth) Refresh(ctx context.Context) {
	deps, allHealthy := RunChecks(ctx, g.checks)
	for name, dep := range deps {
		g.health.SetServingStatus(name, servingStatus(dep.Status == "healthy"))
	}
	g.health.SetServingStatus("", servingStatus(allHealthy))
}

// Serve listens on port and refreshes statuses every interval until ctx ends.
func (g *GRPCHealth) Serve(ctx context.Context, port int, interval time.Duration) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("grpc health listen: %w", err)
	}

	g.Refresh(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				g.health.Shutdown()
				g.server.GracefulStop()
				return
			case <-ticker.C:
				g.Refresh(ctx)
			}
		}
	}()

	logger := GetLogger()
	logger.Info().Int("port", port).Msg("gRPC health server listening")
	return g.server.Serve(lis)
}

// Server exposes the underlying health server, mainly for tests.
func (g *GRPCHealth) Server() healthpb.HealthServer {
	return g.health
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
