package cmd

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"

	"github.com/webitel/cluster-sharding/config"
	"github.com/webitel/cluster-sharding/internal/adminapi"
	"github.com/webitel/cluster-sharding/internal/observability"
)

// NewApp wires the whole process: actor system, journal/snapshot
// backend, the counter ShardHost, and the admin HTTP/gRPC surface, all
// started and stopped through fx's lifecycle hooks.
func NewApp(store *config.Store) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Store { return store },
			func(s *config.Store) *config.Config { return s.Get() },
			ProvideLogger,
			ProvideWatermillLogger,
			ProvideActorSystem,
			ProvideJournal,
			ProvideShardHost,
			ProvideAdminConfig,
			observability.NewTracerProvider,
		),
		fx.Invoke(registerTracerShutdown),
		adminapi.Module,
	)
}

func registerTracerShutdown(lc fx.Lifecycle, tp *sdktrace.TracerProvider) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return observability.Shutdown(ctx, tp)
		},
	})
}
