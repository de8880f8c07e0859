// Package journal provides the event log and snapshot store a
// PersistentShard replays from on recovery, and appends to as entities
// start and stop.
package journal

import "time"

// EntityStarted is appended when a Shard starts hosting an entity, either
// because a message arrived for an id with no live worker or because a
// worker terminated while messages were buffered for it. Restarts during
// recovery or after a back-off do not append it.
type EntityStarted struct {
	EntityId  string
	Timestamp time.Time
}

// EntityStopped is appended when a Shard stops hosting an entity because
// it passivated with nothing buffered for it. An unexpected termination
// does not append it; the entity is restarted after a back-off instead.
type EntityStopped struct {
	EntityId  string
	Timestamp time.Time
}

// Event is the sum type appended to a shard's event stream. It is always
// exactly one of EntityStarted or EntityStopped.
type Event struct {
	Started *EntityStarted
	Stopped *EntityStopped
}

// State is the durable snapshot body: the set of entities the shard
// believed were alive as of the snapshot's sequence number.
type State struct {
	Entities map[string]struct{}
}

// NewState returns an empty State.
func NewState() *State {
	return &State{Entities: make(map[string]struct{})}
}

// Copy returns a deep copy, so callers may hand out a State without the
// receiver being able to mutate the journal's own bookkeeping.
func (s *State) Copy() *State {
	out := NewState()
	for id := range s.Entities {
		out.Entities[id] = struct{}{}
	}
	return out
}

// Apply folds ev into s, mutating it in place. It is the single place
// that defines how the two event kinds affect recovered state.
func (s *State) Apply(ev Event) {
	switch {
	case ev.Started != nil:
		s.Entities[ev.Started.EntityId] = struct{}{}
	case ev.Stopped != nil:
		delete(s.Entities, ev.Stopped.EntityId)
	}
}
