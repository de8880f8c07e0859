package sharding

// EntityId is an application-supplied, non-empty identity used both as a
// routing key and, after percent-encoding, as an entity worker's name.
type EntityId = string

// ShardId is an opaque string, stable for a Shard's lifetime.
type ShardId = string

// HandOff is sent by the coordinator to begin migrating a shard's
// ownership away from this node.
type HandOff struct {
	ShardId ShardId
}

// Stop is the default hand-off stop message forwarded to every live
// entity being drained, unless WithHandOffStopMessage overrides it. An
// entity worker should treat it exactly like the StopMessage of a
// self-requested Passivate.
type Stop struct{}

// Passivate is sent by an entity worker requesting cooperative shutdown.
// StopMessage is forwarded to the worker once the buffering window opens.
type Passivate struct {
	StopMessage any
}

// RestartEntity ensures a single remembered id has a live worker,
// tolerating one that is already running.
type RestartEntity struct {
	EntityId EntityId
}

// RestartEntities is the batch form delivered by an EntityRecoveryStrategy
// and by manual restart requests.
type RestartEntities struct {
	EntityIds []EntityId
}

// GetCurrentShardState requests the set of ids with a live worker right
// now.
type GetCurrentShardState struct{}

// CurrentShardState is the reply to GetCurrentShardState.
type CurrentShardState struct {
	ShardId   ShardId
	EntityIds []EntityId
}

// GetShardStats requests the count of remembered entities.
type GetShardStats struct{}

// ShardStats is the reply to GetShardStats.
type ShardStats struct {
	ShardId     ShardId
	EntityCount int
}

// ShardInitialized is sent to the parent once start-up (and, for a
// persistent shard, recovery) has completed.
type ShardInitialized struct {
	ShardId ShardId
}

// ShardStopped is sent to the hand-off initiator: by the Shard itself when
// it has no live entities at hand-off, otherwise by the default hand-off
// stopper once every entity it drained has terminated.
type ShardStopped struct {
	ShardId ShardId
}

// recoveryCompleted is delivered by a persistent shard to itself once
// journal replay has finished, carrying the reconstructed entity set. It
// is never sent by anything outside this package.
type recoveryCompleted struct {
	entityIds []EntityId
}
