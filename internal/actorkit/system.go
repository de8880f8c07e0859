package actorkit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DeadLetter is emitted whenever a message could not be delivered: the
// target had already stopped, or its mailbox was full.
type DeadLetter struct {
	From    *PID
	To      *PID
	Message any
}

// Cancel stops a scheduled one-shot callback if it has not fired yet.
type Cancel func()

const mailboxSize = 256

// System hosts a flat registry of actors, a dead-letter sink, and a
// one-shot scheduler. It is deliberately small: the sharding package
// depends only on this surface, never on a specific third-party actor
// framework.
type System struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	actors map[string]*PID
	closed bool

	deadLetters chan DeadLetter
}

// NewSystem creates an actor system identified by name. Dead letters are
// published on an internal channel drainable via DeadLetters.
func NewSystem(name string, logger *slog.Logger) *System {
	if logger == nil {
		logger = slog.Default()
	}
	return &System{
		name:        name,
		logger:      logger.With("system", name),
		actors:      make(map[string]*PID),
		deadLetters: make(chan DeadLetter, mailboxSize),
	}
}

// Name returns the system's name.
func (s *System) Name() string { return s.name }

// DeadLetters returns the channel dead letters are published on. Callers
// that never read it simply let the buffer fill; after that each new
// letter is dropped and logged, since System.deadLetter never blocks.
func (s *System) DeadLetters() <-chan DeadLetter { return s.deadLetters }

// Spawn starts a new actor under name, which must be unique within the
// system. PreStart runs synchronously before Spawn returns; a PreStart
// error aborts the spawn and no goroutine is started.
func (s *System) Spawn(name string, a Actor) (*PID, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("actorkit: system %q is shut down", s.name)
	}
	if _, exists := s.actors[name]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("actorkit: actor %q already exists", name)
	}
	pid := &PID{
		name:    name,
		system:  s,
		actor:   a,
		mailbox: make(chan mailboxEnvelope, mailboxSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	s.actors[name] = pid
	s.mu.Unlock()

	ctx := &Context{self: pid, system: s, logger: s.logger.With("actor", name)}
	if err := a.PreStart(ctx); err != nil {
		s.mu.Lock()
		delete(s.actors, name)
		s.mu.Unlock()
		close(pid.stopped)
		return nil, fmt.Errorf("actorkit: PreStart %q: %w", name, err)
	}

	go pid.loop(ctx)
	return pid, nil
}

// Lookup returns the PID registered under name, if any is currently
// running.
func (s *System) Lookup(name string) (*PID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, ok := s.actors[name]
	return pid, ok
}

func (s *System) unregister(p *PID) {
	s.mu.Lock()
	if s.actors[p.name] == p {
		delete(s.actors, p.name)
	}
	s.mu.Unlock()
}

// DeadLetter publishes a message that could not be routed to any PID
// (for example, one addressed by an empty or unrecognized key) to the
// dead-letter sink, the same way an undeliverable Tell would.
func (s *System) DeadLetter(from, to *PID, message any) {
	s.deadLetter(from, to, message)
}

func (s *System) deadLetter(from, to *PID, message any) {
	letter := DeadLetter{From: from, To: to, Message: message}
	select {
	case s.deadLetters <- letter:
	default:
		s.logger.Warn("DEAD_LETTER_SINK_FULL", "to", to.Name(), "message", fmt.Sprintf("%T", message))
	}
}

// ScheduleOnce runs fn once after d elapses, on its own goroutine. The
// returned Cancel prevents fn from running if called before d elapses;
// it is a no-op afterwards.
func (s *System) ScheduleOnce(d time.Duration, fn func()) Cancel {
	timer := time.AfterFunc(d, fn)
	return func() { timer.Stop() }
}

// Shutdown stops every actor still registered in the system and waits for
// ctx or for all of them to fully drain, whichever comes first.
func (s *System) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	pids := make([]*PID, 0, len(s.actors))
	for _, p := range s.actors {
		pids = append(pids, p)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(pids))
	for _, p := range pids {
		p := p
		go func() {
			defer wg.Done()
			_ = p.Shutdown(ctx)
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
