package actorkit

import "log/slog"

// Context is handed to PreStart and PostStop, where there is no inbound
// message to react to.
type Context struct {
	self   *PID
	system *System
	logger *slog.Logger
}

// Self returns the PID of the actor this Context belongs to.
func (c *Context) Self() *PID { return c.self }

// System returns the actor system this actor is running on, so that
// PreStart can spawn children or schedule work.
func (c *Context) System() *System { return c.system }

// Logger returns a logger pre-tagged with this actor's name.
func (c *Context) Logger() *slog.Logger { return c.logger }

// ReceiveContext is handed to Receive for each inbound mailbox message.
type ReceiveContext struct {
	Context
	message any
	sender  *PID
}

// Message returns the payload delivered to this Receive call.
func (c *ReceiveContext) Message() any { return c.message }

// Sender returns the PID that sent this message, or nil if it was sent
// without a sender handle (e.g. an internal system notification).
func (c *ReceiveContext) Sender() *PID { return c.sender }

// Tell sends message to to, asynchronously, with this actor's Self() as
// the sender. It never blocks: delivery to a full or dead mailbox is
// routed to the system's dead-letter sink.
func (c *ReceiveContext) Tell(to *PID, message any) {
	if to == nil {
		c.system.deadLetter(c.Self(), nil, message)
		return
	}
	to.tell(c.Self(), message)
}

// Unhandled marks the current message as one this actor had no case for
// by routing it to the system's dead-letter sink, mirroring the convention
// of actor frameworks that dead-letter unmatched messages rather than
// panicking.
func (c *ReceiveContext) Unhandled() {
	c.system.deadLetter(c.Self(), c.sender, c.message)
}
