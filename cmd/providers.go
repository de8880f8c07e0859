package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/webitel/cluster-sharding/config"
	"github.com/webitel/cluster-sharding/internal/actorkit"
	"github.com/webitel/cluster-sharding/internal/adminapi"
	"github.com/webitel/cluster-sharding/internal/counter"
	"github.com/webitel/cluster-sharding/internal/host"
	"github.com/webitel/cluster-sharding/internal/journal"
	"github.com/webitel/cluster-sharding/internal/recovery"
	"github.com/webitel/cluster-sharding/internal/sharding"
)

// counterTypeName is the single entity type this demo binary hosts.
const counterTypeName = "counter"

// counterShardCount bounds how many shard ids Extractor ever produces.
const counterShardCount = 32

// counterIdleTimeout is how long a counter entity sits idle before
// passivating itself.
const counterIdleTimeout = 2 * time.Minute

// ProvideLogger builds the process-wide slog.Logger, JSON-formatted the
// way a service meant to run under log aggregation should be.
func ProvideLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// ProvideWatermillLogger adapts the shared slog.Logger to the interface
// watermill's publishers/subscribers log through.
func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger)
}

// ProvideActorSystem builds the single actorkit.System every Shard and
// entity worker in this process is spawned on.
func ProvideActorSystem(logger *slog.Logger) *actorkit.System {
	return actorkit.NewSystem(ServiceName, logger)
}

// ProvideJournal builds the Journal/SnapshotStore pair Shards persist
// entity membership through. With a non-empty AMQPURL it durably journals
// against a real broker via watermill-amqp; with AMQPURL set to empty it
// uses an in-process, still-replayable Watermill GoChannel instead. The
// config defaults set an AMQP URL, so the broker path is the default.
func ProvideJournal(cfg *config.Config, logger *slog.Logger, wlogger watermill.LoggerAdapter) (journal.Journal, journal.SnapshotStore, error) {
	pub, sub, err := buildPubSub(cfg, wlogger)
	if err != nil {
		return nil, nil, err
	}
	j := journal.NewWatermillJournal(pub, sub, logger)

	snapshots, err := journal.NewLRUSnapshotCache(journal.NewMemorySnapshotStore(), 256)
	if err != nil {
		return nil, nil, fmt.Errorf("cmd: build snapshot cache: %w", err)
	}
	return j, snapshots, nil
}

func buildPubSub(cfg *config.Config, wlogger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	if cfg.AMQPURL == "" {
		gc := gochannel.NewGoChannel(gochannel.Config{Persistent: true, OutputChannelBuffer: 64}, wlogger)
		return gc, gc, nil
	}

	amqpConfig := amqp.NewDurablePubSubConfig(cfg.AMQPURL, amqp.GenerateQueueNameTopicName)
	pub, err := amqp.NewPublisher(amqpConfig, wlogger)
	if err != nil {
		return nil, nil, fmt.Errorf("cmd: build amqp publisher: %w", err)
	}
	sub, err := amqp.NewSubscriber(amqpConfig, wlogger)
	if err != nil {
		return nil, nil, fmt.Errorf("cmd: build amqp subscriber: %w", err)
	}
	return pub, sub, nil
}

// ProvideShardHost wires the counter entity type onto a ShardHost: one
// Shard per shard id, lazily constructed with the tuning parameters
// currently held in store, remember-entities durability through j and
// snapshots, and recovery paced per cfg.Sharding.RecoveryStrategy.
func ProvideShardHost(system *actorkit.System, store *config.Store, j journal.Journal, snapshots journal.SnapshotStore, logger *slog.Logger) *host.ShardHost {
	extractor := counter.NewExtractor(counterShardCount)

	factory := func(shardId sharding.ShardId) *sharding.Shard {
		sc := store.Get().Sharding
		settings := sharding.PersistentSettings{
			SnapshotAfter:        sc.SnapshotAfter,
			EntityRestartBackoff: sc.EntityRestartBackoff,
			RecoveryStrategy:     recoveryStrategyFor(sc),
			JournalPluginId:      sc.JournalPluginId,
			SnapshotPluginId:     sc.SnapshotPluginId,
		}
		entityProps := counter.NewEntityProps(counterTypeName, shardId, counterIdleTimeout)
		return sharding.NewPersistentShard(counterTypeName, shardId, entityProps, extractor, j, snapshots, settings,
			sharding.WithBufferSize(sc.BufferSize))
	}

	return host.NewShardHost(system, counterTypeName, factory, extractor, host.WithLogger(logger))
}

func recoveryStrategyFor(sc config.ShardingConfig) recovery.Strategy {
	if sc.RecoveryStrategy == "all_at_once" {
		return recovery.AllAtOnce{}
	}
	return recovery.ConstantRate{Frequency: sc.RecoveryFrequency, NumberOfEntities: sc.RecoveryBatchSize}
}

// ProvideAdminConfig addresses the HTTP/gRPC listeners adminapi.Module
// starts.
func ProvideAdminConfig(cfg *config.Config) adminapi.Config {
	return adminapi.Config{HTTPAddr: cfg.HTTPAddr, GRPCAddr: cfg.GRPCAddr}
}
