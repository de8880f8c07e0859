package sharding

import "github.com/webitel/cluster-sharding/internal/actorkit"

// NewHandOffStopperProps returns the default HandOffStopperProps: a
// one-shot worker that forwards stopMessage to every entity handed to
// it, watches each, and once all of them have terminated sends
// ShardStopped to replyTo and stops itself. A Shard watches the stopper
// in turn and stops when the stopper does.
func NewHandOffStopperProps() HandOffStopperProps {
	return func(shardId ShardId, replyTo *actorkit.PID, entities []*actorkit.PID, stopMessage any) actorkit.Actor {
		return &handOffStopper{shardId: shardId, replyTo: replyTo, entities: entities, stopMessage: stopMessage}
	}
}

type handOffStopper struct {
	shardId     ShardId
	replyTo     *actorkit.PID
	entities    []*actorkit.PID
	stopMessage any
	remaining   map[*actorkit.PID]struct{}
}

func (h *handOffStopper) PreStart(ctx *actorkit.Context) error {
	h.remaining = make(map[*actorkit.PID]struct{}, len(h.entities))
	for _, ref := range h.entities {
		h.remaining[ref] = struct{}{}
	}
	for _, ref := range h.entities {
		ref.Watch(ctx.Self())
		ref.Forward(ctx.Self(), h.stopMessage)
	}
	if len(h.remaining) == 0 {
		h.finish(ctx.Self())
	}
	return nil
}

func (h *handOffStopper) finish(self *actorkit.PID) {
	h.replyTo.Forward(self, ShardStopped{ShardId: h.shardId})
	self.RequestStop()
}

func (h *handOffStopper) Receive(ctx *actorkit.ReceiveContext) {
	term, ok := ctx.Message().(actorkit.Terminated)
	if !ok {
		ctx.Unhandled()
		return
	}

	delete(h.remaining, term.PID)
	if len(h.remaining) == 0 {
		h.finish(ctx.Self())
	}
}

func (h *handOffStopper) PostStop(ctx *actorkit.Context) error {
	return nil
}
