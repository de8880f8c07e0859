package adminapi

import (
	"context"
	"log/slog"
	"net"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer exposes cluster-sharding's liveness/readiness over the
// standard gRPC health-checking protocol, so a node can be wired into the
// same orchestrator probes (Kubernetes, a service mesh) as any other
// gRPC-native service, without this package owning any bespoke RPCs of
// its own.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	logger *slog.Logger
}

// NewGRPCServer builds the health-checking gRPC server. It starts in the
// NOT_SERVING state; call MarkServing once recovery across the watched
// ShardHosts has completed.
func NewGRPCServer(logger *slog.Logger) *GRPCServer {
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			recovery.UnaryServerInterceptor(),
			logging.UnaryServerInterceptor(slogLogger(logger)),
		),
		grpc.ChainStreamInterceptor(
			recovery.StreamServerInterceptor(),
			logging.StreamServerInterceptor(slogLogger(logger)),
		),
	)
	grpc_health_v1.RegisterHealthServer(srv, healthSrv)

	return &GRPCServer{server: srv, health: healthSrv, logger: logger}
}

// MarkServing flips the overall service health to SERVING.
func (g *GRPCServer) MarkServing() {
	g.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
}

// MarkNotServing flips the overall service health to NOT_SERVING, for use
// during a graceful hand-off drain before the process actually exits.
func (g *GRPCServer) MarkNotServing() {
	g.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

// Serve blocks accepting connections on lis until the server is stopped.
func (g *GRPCServer) Serve(lis net.Listener) error {
	return g.server.Serve(lis)
}

// GracefulStop stops accepting new RPCs and waits for in-flight ones to
// finish, or for ctx to be done.
func (g *GRPCServer) GracefulStop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		g.server.Stop()
	}
	g.health.Shutdown()
}

// slogLogger adapts a *slog.Logger to the logging.Logger contract the
// middleware interceptors expect.
func slogLogger(logger *slog.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		logger.Log(ctx, slog.Level(lvl), msg, fields...)
	})
}
