package actorkit

import (
	"context"
	"sync"
)

// Terminated is delivered to every watcher of a PID once that PID has
// fully stopped (mailbox drained, PostStop returned).
type Terminated struct {
	PID *PID
}

type mailboxEnvelope struct {
	sender  *PID
	message any
}

// PID is an opaque handle to a running actor. It is the only thing callers
// outside the actor's own goroutine ever touch.
type PID struct {
	name    string
	system  *System
	actor   Actor
	mailbox chan mailboxEnvelope
	done    chan struct{}
	stopped chan struct{}

	mu       sync.Mutex
	watchers map[*PID]struct{}
	stopping bool
}

// Name returns the actor's name, unique within its System. It is safe to
// call on a nil PID (returns "<nil>"), so logging a dead letter with no
// resolved target never panics.
func (p *PID) Name() string {
	if p == nil {
		return "<nil>"
	}
	return p.name
}

// Tell sends message to p asynchronously. The call never blocks: if p's
// mailbox is full or p has already stopped, the message is routed to the
// system's dead-letter sink instead.
func (p *PID) Tell(ctx context.Context, message any) error {
	p.tell(nil, message)
	return nil
}

// Forward sends message to p as if sender had sent it directly, without
// wrapping it in the calling actor's own identity. Shard uses this to
// preserve the original caller across a buffering window.
func (p *PID) Forward(sender *PID, message any) {
	p.tell(sender, message)
}

func (p *PID) tell(sender *PID, message any) {
	if p == nil {
		return
	}
	p.mu.Lock()
	stopping := p.stopping
	p.mu.Unlock()
	if stopping {
		p.system.deadLetter(sender, p, message)
		return
	}
	select {
	case p.mailbox <- mailboxEnvelope{sender: sender, message: message}:
	default:
		p.system.deadLetter(sender, p, message)
	}
}

// Watch registers watcher to receive a Terminated{PID: p} notification,
// delivered to watcher's own mailbox, once p stops. Watching an already
// stopped PID delivers the notification immediately.
func (p *PID) Watch(watcher *PID) {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		watcher.tell(nil, Terminated{PID: p})
		return
	}
	if p.watchers == nil {
		p.watchers = make(map[*PID]struct{})
	}
	p.watchers[watcher] = struct{}{}
	p.mu.Unlock()
}

// Unwatch stops watcher from receiving future Terminated notifications
// from p.
func (p *PID) Unwatch(watcher *PID) {
	p.mu.Lock()
	delete(p.watchers, watcher)
	p.mu.Unlock()
}

// RequestStop signals p to stop without waiting for it to finish; it is
// safe to call from p's own Receive, where blocking on Shutdown would
// deadlock against the very goroutine being asked to exit.
func (p *PID) RequestStop() {
	p.mu.Lock()
	already := p.stopping
	p.stopping = true
	p.mu.Unlock()
	if !already {
		close(p.done)
	}
}

// Shutdown stops p: no further messages are delivered, the mailbox drains
// what is already queued, PostStop runs, and every watcher is notified.
// Shutdown blocks until the actor's goroutine has fully exited or ctx is
// done, whichever comes first. Never call Shutdown on Self() from within
// that actor's own Receive/PreStart/PostStop; use RequestStop instead.
func (p *PID) Shutdown(ctx context.Context) error {
	p.RequestStop()
	select {
	case <-p.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PID) notifyWatchers() {
	p.mu.Lock()
	watchers := make([]*PID, 0, len(p.watchers))
	for w := range p.watchers {
		watchers = append(watchers, w)
	}
	p.watchers = nil
	p.mu.Unlock()

	for _, w := range watchers {
		w.tell(nil, Terminated{PID: p})
	}
}

func (p *PID) loop(ctx *Context) {
	defer close(p.stopped)
	// unregister before notifying watchers: a watcher reacting to
	// Terminated by respawning under this same name must not race the
	// name still being held in the system's registry.
	defer p.notifyWatchers()
	defer p.system.unregister(p)

	for {
		select {
		case env := <-p.mailbox:
			rctx := &ReceiveContext{Context: *ctx, message: env.message, sender: env.sender}
			p.actor.Receive(rctx)
		case <-p.done:
			// Drain whatever is already queued before stopping, preserving
			// delivery order for messages sent before Shutdown was called.
			for {
				select {
				case env := <-p.mailbox:
					rctx := &ReceiveContext{Context: *ctx, message: env.message, sender: env.sender}
					p.actor.Receive(rctx)
					continue
				default:
				}
				break
			}
			if err := p.actor.PostStop(ctx); err != nil {
				p.system.logger.Error("ACTOR_POSTSTOP_FAILED", "actor", p.name, "err", err)
			}
			return
		}
	}
}
