package sharding

import "github.com/webitel/cluster-sharding/internal/actorkit"

// MessageExtractor classifies inbound traffic. ExtractEntityId is partial:
// a message it does not recognize as application traffic returns
// ok=false and the Shard routes it to dead letters as unhandled (the
// dispatch switch will have already matched any control message before
// falling through here).
// ExtractShardId is consulted only by the upstream router placing a
// message onto the right Shard in the first place.
type MessageExtractor interface {
	ExtractEntityId(message any) (id EntityId, payload any, ok bool)
	ExtractShardId(message any) (shardId ShardId, ok bool)
}

// EntityProps constructs a fresh entity worker instance. It is called
// once per spawn; the returned Actor must not be reused across calls.
type EntityProps func() actorkit.Actor

// HandOffStopperProps constructs the per-hand-off stopper worker,
// parameterized with the shard being drained, the reply target, the live
// entity handles it must watch stop, and the application-supplied stop
// message.
type HandOffStopperProps func(shardId ShardId, replyTo *actorkit.PID, entities []*actorkit.PID, stopMessage any) actorkit.Actor
