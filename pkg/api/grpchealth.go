package api

import (
	"fmt"
	"net"

	"github.com/alarmweave/alarmweave/pkg/eventlog"
	"github.com/alarmweave/alarmweave/pkg/log"
	"github.com/alarmweave/alarmweave/pkg/pool"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealthServer serves the standard grpc.health.v1 protocol alongside
// the HTTP /health and /ready endpoints, for service meshes and load
// balancers that probe gRPC services natively rather than over HTTP. It
// carries no application-specific RPCs of its own — grpc_health_v1's
// client and server stubs ship inside google.golang.org/grpc itself, so
// this needs no generated code.
type GRPCHealthServer struct {
	srv     *grpc.Server
	checker *health.Server
}

// NewGRPCHealthServer builds a GRPCHealthServer and seeds the "pool" and
// "eventlog" service names from whether their collaborators are wired yet.
// The empty service name ("") reports the engine's overall status.
func NewGRPCHealthServer(p *pool.Pool, l *eventlog.Log) *GRPCHealthServer {
	checker := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, checker)

	checker.SetServingStatus("pool", servingStatus(p != nil))
	checker.SetServingStatus("eventlog", servingStatus(l != nil))
	checker.SetServingStatus("", servingStatus(p != nil && l != nil))

	return &GRPCHealthServer{srv: srv, checker: checker}
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// SetServing updates one service's status after startup — for example once
// the flush scheduler confirms its upload destination is reachable.
func (g *GRPCHealthServer) SetServing(service string, serving bool) {
	g.checker.SetServingStatus(service, servingStatus(serving))
}

// Start listens on addr and serves until the listener or the server stops.
func (g *GRPCHealthServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	apiLogger := log.WithComponent("api")
	apiLogger.Info().Str("addr", addr).Msg("grpc health server listening")
	return g.srv.Serve(lis)
}

// Stop gracefully stops the gRPC server, letting in-flight Check calls
// finish.
func (g *GRPCHealthServer) Stop() {
	g.srv.GracefulStop()
}
