package counter

import (
	"time"

	"github.com/webitel/cluster-sharding/internal/actorkit"
	"github.com/webitel/cluster-sharding/internal/sharding"
)

// entity is the worker an EntityProps spawns: in-memory counter state,
// self-passivating after idleTimeout with no traffic. It never persists
// its own value directly — remember-entities durability only tracks
// which ids are live, per the PersistenceStrategy this Shard was built
// with; the counter value itself resets on restart, same as any entity
// whose application state lives outside the sharding layer.
type entity struct {
	shardName   string
	idleTimeout time.Duration

	value      int
	cancelIdle actorkit.Cancel
}

// NewEntityProps builds the EntityProps for one (typeName, shardId) pair.
// The returned function is suitable for sharding.NewShard/NewPersistentShard
// and is called once per spawned worker.
func NewEntityProps(typeName string, shardId sharding.ShardId, idleTimeout time.Duration) sharding.EntityProps {
	shardName := sharding.ShardName(typeName, shardId)
	return func() actorkit.Actor {
		return &entity{shardName: shardName, idleTimeout: idleTimeout}
	}
}

// PreStart implements actorkit.Actor.
func (e *entity) PreStart(ctx *actorkit.Context) error {
	e.armIdleTimer(ctx.Self(), ctx.System())
	return nil
}

// PostStop implements actorkit.Actor.
func (e *entity) PostStop(*actorkit.Context) error {
	if e.cancelIdle != nil {
		e.cancelIdle()
	}
	return nil
}

// Receive implements actorkit.Actor.
func (e *entity) Receive(ctx *actorkit.ReceiveContext) {
	switch msg := ctx.Message().(type) {
	case Increment:
		e.value += msg.Delta
		ctx.Tell(ctx.Sender(), Value{EntityId: msg.EntityId, Value: e.value})
	case GetValue:
		ctx.Tell(ctx.Sender(), Value{EntityId: msg.EntityId, Value: e.value})
	case passivateIdle:
		e.requestPassivate(ctx)
		return
	case sharding.Stop:
		ctx.Self().RequestStop()
		return
	default:
		ctx.Unhandled()
		return
	}
	e.armIdleTimer(ctx.Self(), ctx.System())
}

// requestPassivate asks this entity's Shard to passivate it, if the
// Shard can still be found under its well-known name. A missing Shard
// (already handed off or stopped) means there is nothing to ask.
func (e *entity) requestPassivate(ctx *actorkit.ReceiveContext) {
	shard, ok := ctx.System().Lookup(e.shardName)
	if !ok {
		return
	}
	ctx.Tell(shard, sharding.Passivate{StopMessage: sharding.Stop{}})
}

func (e *entity) armIdleTimer(self *actorkit.PID, system *actorkit.System) {
	if e.cancelIdle != nil {
		e.cancelIdle()
	}
	e.cancelIdle = system.ScheduleOnce(e.idleTimeout, func() {
		self.Forward(nil, passivateIdle{})
	})
}
