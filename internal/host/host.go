// Package host provides the lazy per-shard-id registry that sits above a
// single sharding.Shard: one ShardHost per entity type, holding exactly as
// many live Shards as there are shard ids currently seeing traffic.
package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webitel/cluster-sharding/internal/actorkit"
	"github.com/webitel/cluster-sharding/internal/sharding"
)

// ShardFactory builds a fresh, not-yet-spawned Shard for shardId. It is
// called on a shard id's first access, and again on the next access after
// HandOffOne removed that id. Concurrent first accesses may each call it;
// the losing side's Shard is discarded unspawned.
type ShardFactory func(shardId sharding.ShardId) *sharding.Shard

// ShardHost is the [SCALABLE_REGISTRY] one level up from a Shard's own
// entity registry: shards instead of entities, lazily created on first
// message, addressed by sharding.MessageExtractor.ExtractShardId.
type ShardHost struct {
	system    *actorkit.System
	typeName  string
	factory   ShardFactory
	extractor sharding.MessageExtractor
	logger    *slog.Logger

	// shards stores Map[sharding.ShardId]*actorkit.PID. Optimized for
	// read-heavy routing: most messages address a shard that already exists.
	shards sync.Map

	statsTimeout time.Duration
}

// NewShardHost constructs a host for one entity type. typeName must match
// the typeName every Shard built by factory was given, since it doubles as
// the actor-name prefix used to address shards directly if needed.
func NewShardHost(system *actorkit.System, typeName string, factory ShardFactory, extractor sharding.MessageExtractor, opts ...Option) *ShardHost {
	h := &ShardHost{
		system:       system,
		typeName:     typeName,
		factory:      factory,
		extractor:    extractor,
		logger:       slog.Default().With("component", "shard_host", "type_name", typeName),
		statsTimeout: defaultStatsTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Deliver routes message to the shard ExtractShardId names, lazily spawning
// that shard's supervisor if this is its first message. A message the
// extractor does not recognize is dead-lettered.
func (h *ShardHost) Deliver(sender *actorkit.PID, message any) {
	shardId, ok := h.extractor.ExtractShardId(message)
	if !ok {
		h.logger.Warn("SHARD_ID_UNRESOLVABLE", "type", fmt.Sprintf("%T", message))
		h.system.DeadLetter(sender, nil, message)
		return
	}

	pid := h.shardFor(shardId)
	pid.Forward(sender, message)
}

// shardFor returns the live Shard for shardId, spawning one via factory on
// first access. Mirrors a LoadOrStore lazy-init registry: on the rare
// concurrent-first-access race, the losing factory output is discarded and
// never spawned, so at most one Shard actor per id ever runs.
func (h *ShardHost) shardFor(shardId sharding.ShardId) *actorkit.PID {
	if val, ok := h.shards.Load(shardId); ok {
		return val.(*actorkit.PID)
	}

	shard := h.factory(shardId)
	pid, err := h.system.Spawn(shard.Name(), shard)
	if err != nil {
		if existing, ok := h.system.Lookup(shard.Name()); ok {
			h.shards.LoadOrStore(shardId, existing)
			return existing
		}
		h.logger.Error("SHARD_SPAWN_FAILED", "shard_id", shardId, "err", err)
		return nil
	}

	actual, _ := h.shards.LoadOrStore(shardId, pid)
	return actual.(*actorkit.PID)
}

// ShardIds returns the ids of every shard this host currently has live,
// in no particular order.
func (h *ShardHost) ShardIds() []sharding.ShardId {
	ids := make([]sharding.ShardId, 0)
	h.shards.Range(func(key, _ any) bool {
		ids = append(ids, key.(sharding.ShardId))
		return true
	})
	return ids
}

// Stats gathers a ShardStats reply from every currently live shard,
// skipping (and logging) any that does not answer within statsTimeout.
func (h *ShardHost) Stats(ctx context.Context) []sharding.ShardStats {
	pids := make([]*actorkit.PID, 0)
	h.shards.Range(func(_, value any) bool {
		pids = append(pids, value.(*actorkit.PID))
		return true
	})
	if len(pids) == 0 {
		return nil
	}

	inbox := make(chan sharding.ShardStats, len(pids))
	collector, err := h.system.Spawn(fmt.Sprintf("shard-host/%s/stats-collector/%s", h.typeName, newCollectorSuffix()), &statsCollector{inbox: inbox})
	if err != nil {
		h.logger.Error("STATS_COLLECTOR_SPAWN_FAILED", "err", err)
		return nil
	}
	defer func() { _ = collector.Shutdown(ctx) }()

	for _, pid := range pids {
		pid.Forward(collector, sharding.GetShardStats{})
	}

	deadline := time.NewTimer(h.statsTimeout)
	defer deadline.Stop()

	stats := make([]sharding.ShardStats, 0, len(pids))
	for i := 0; i < len(pids); i++ {
		select {
		case s := <-inbox:
			stats = append(stats, s)
		case <-deadline.C:
			h.logger.Warn("STATS_COLLECTION_TIMED_OUT", "collected", len(stats), "expected", len(pids))
			return stats
		case <-ctx.Done():
			return stats
		}
	}
	return stats
}

// Shutdown hands off every live shard and waits for each to confirm it has
// stopped, or for ctx to expire. If ctx expires first, Shutdown logs how
// many shards are still pending and returns ctx's error; those shards are
// not stopped by Shutdown itself.
func (h *ShardHost) Shutdown(ctx context.Context) error {
	type handoff struct {
		shardId sharding.ShardId
		pid     *actorkit.PID
	}
	var pending []handoff
	h.shards.Range(func(key, value any) bool {
		pending = append(pending, handoff{shardId: key.(sharding.ShardId), pid: value.(*actorkit.PID)})
		return true
	})
	if len(pending) == 0 {
		return nil
	}

	inbox := make(chan sharding.ShardStopped, len(pending))
	collector, err := h.system.Spawn(fmt.Sprintf("shard-host/%s/shutdown-collector/%s", h.typeName, newCollectorSuffix()), &shutdownCollector{inbox: inbox})
	if err != nil {
		return fmt.Errorf("host: spawn shutdown collector: %w", err)
	}
	defer func() { _ = collector.Shutdown(context.Background()) }()

	for _, p := range pending {
		p.pid.Forward(collector, sharding.HandOff{ShardId: p.shardId})
	}

	remaining := len(pending)
	for remaining > 0 {
		select {
		case <-inbox:
			remaining--
		case <-ctx.Done():
			h.logger.Warn("SHUTDOWN_HANDOFF_TIMED_OUT", "remaining", remaining)
			return ctx.Err()
		}
	}
	return nil
}

// CurrentState asks shardId for its currently-live entity ids. It returns
// ok=false if shardId has never seen traffic on this host, without
// spawning one just to answer an introspection query.
func (h *ShardHost) CurrentState(ctx context.Context, shardId sharding.ShardId) (state sharding.CurrentShardState, ok bool) {
	val, loaded := h.shards.Load(shardId)
	if !loaded {
		return sharding.CurrentShardState{}, false
	}
	pid := val.(*actorkit.PID)

	inbox := make(chan sharding.CurrentShardState, 1)
	collector, err := h.system.Spawn(fmt.Sprintf("shard-host/%s/state-collector/%s", h.typeName, newCollectorSuffix()), &stateCollector{inbox: inbox})
	if err != nil {
		h.logger.Error("STATE_COLLECTOR_SPAWN_FAILED", "err", err)
		return sharding.CurrentShardState{}, false
	}
	defer func() { _ = collector.Shutdown(context.Background()) }()

	pid.Forward(collector, sharding.GetCurrentShardState{})
	select {
	case state = <-inbox:
		return state, true
	case <-ctx.Done():
		return sharding.CurrentShardState{}, false
	}
}

// HandOffOne hands off a single shard and waits for it to confirm it has
// stopped, or for ctx to expire. A shardId with no live shard is a no-op.
func (h *ShardHost) HandOffOne(ctx context.Context, shardId sharding.ShardId) error {
	val, loaded := h.shards.LoadAndDelete(shardId)
	if !loaded {
		return nil
	}
	pid := val.(*actorkit.PID)

	inbox := make(chan sharding.ShardStopped, 1)
	collector, err := h.system.Spawn(fmt.Sprintf("shard-host/%s/handoff-collector/%s", h.typeName, newCollectorSuffix()), &shutdownCollector{inbox: inbox})
	if err != nil {
		return fmt.Errorf("host: spawn handoff collector: %w", err)
	}
	defer func() { _ = collector.Shutdown(context.Background()) }()

	pid.Forward(collector, sharding.HandOff{ShardId: shardId})
	select {
	case <-inbox:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// newCollectorSuffix makes the throwaway per-call collector actor's name
// unique across repeated Stats/Shutdown calls on the same host.
func newCollectorSuffix() string {
	return uuid.NewString()
}

type statsCollector struct {
	inbox chan sharding.ShardStats
}

func (c *statsCollector) PreStart(*actorkit.Context) error { return nil }
func (c *statsCollector) PostStop(*actorkit.Context) error { return nil }
func (c *statsCollector) Receive(ctx *actorkit.ReceiveContext) {
	if s, ok := ctx.Message().(sharding.ShardStats); ok {
		c.inbox <- s
	}
}

type stateCollector struct {
	inbox chan sharding.CurrentShardState
}

func (c *stateCollector) PreStart(*actorkit.Context) error { return nil }
func (c *stateCollector) PostStop(*actorkit.Context) error { return nil }
func (c *stateCollector) Receive(ctx *actorkit.ReceiveContext) {
	if s, ok := ctx.Message().(sharding.CurrentShardState); ok {
		c.inbox <- s
	}
}

type shutdownCollector struct {
	inbox chan sharding.ShardStopped
}

func (c *shutdownCollector) PreStart(*actorkit.Context) error { return nil }
func (c *shutdownCollector) PostStop(*actorkit.Context) error { return nil }
func (c *shutdownCollector) Receive(ctx *actorkit.ReceiveContext) {
	if s, ok := ctx.Message().(sharding.ShardStopped); ok {
		c.inbox <- s
	}
}
