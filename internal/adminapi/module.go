package adminapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"

	"github.com/webitel/cluster-sharding/internal/host"
)

// Config addresses the two listeners this package owns.
type Config struct {
	HTTPAddr string
	GRPCAddr string
}

// Module wires the HTTP/websocket introspection surface and the gRPC
// health server, starting both listeners on fx's OnStart and draining them
// on OnStop.
var Module = fx.Module("adminapi",
	fx.Provide(
		NewHTTPHandler,
		NewGRPCServer,
	),
	fx.Invoke(registerHTTPServer, registerGRPCServer),
)

func registerHTTPServer(lc fx.Lifecycle, logger *slog.Logger, cfg Config, handler *HTTPHandler) {
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: handler.Routes()}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			lis, err := net.Listen("tcp", cfg.HTTPAddr)
			if err != nil {
				return fmt.Errorf("adminapi: listen http %s: %w", cfg.HTTPAddr, err)
			}
			go func() {
				if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
					logger.Error("ADMIN_HTTP_SERVER_FAILED", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

func registerGRPCServer(lc fx.Lifecycle, cfg Config, grpcSrv *GRPCServer, h *host.ShardHost) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				return fmt.Errorf("adminapi: listen grpc %s: %w", cfg.GRPCAddr, err)
			}
			go func() {
				_ = grpcSrv.Serve(lis)
			}()
			grpcSrv.MarkServing()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			grpcSrv.MarkNotServing()
			_ = h.Shutdown(ctx)
			grpcSrv.GracefulStop(ctx)
			return nil
		},
	})
}
