// Package actorkit is a minimal actor runtime: one goroutine and one
// buffered mailbox per actor, lazy spawn, watch-for-termination, and a
// one-shot scheduler. It exists so the sharding package can depend on an
// actor runtime through a narrow interface, the way spec.md treats "the
// actor runtime" as an external collaborator — a real framework could be
// substituted by implementing the same small surface.
package actorkit

// Actor is the lifecycle contract every actor hosted by a System
// implements.
//
// Implementations should keep state private and mutate it only from
// within Receive. PreStart runs synchronously on the goroutine that calls
// System.Spawn, before the mailbox loop starts; Receive and PostStop run
// on the actor's own goroutine, PostStop after the mailbox drains. The
// three never overlap, so no synchronization is needed between them.
type Actor interface {
	// PreStart runs once, before the mailbox loop starts. A non-nil error
	// aborts the spawn: the actor's name is released again and no message
	// is ever delivered to it.
	PreStart(ctx *Context) error

	// Receive handles one message at a time from the actor's mailbox.
	Receive(ctx *ReceiveContext)

	// PostStop runs once, after the mailbox has drained and the actor is
	// shutting down. Errors are logged but never block shutdown.
	PostStop(ctx *Context) error
}
