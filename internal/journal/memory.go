package journal

import (
	"context"
	"sync"
)

// MemoryJournal is an in-process Journal backed by a map of slices. It is
// the default for tests and for running without a configured durability
// backend.
type MemoryJournal struct {
	mu     sync.Mutex
	events map[string][]Event
}

// NewMemoryJournal returns an empty MemoryJournal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{events: make(map[string][]Event)}
}

func (j *MemoryJournal) Append(ctx context.Context, persistenceId string, ev Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events[persistenceId] = append(j.events[persistenceId], ev)
	return nil
}

func (j *MemoryJournal) Replay(ctx context.Context, persistenceId string, handle func(Event) error) error {
	j.mu.Lock()
	events := make([]Event, len(j.events[persistenceId]))
	copy(events, j.events[persistenceId])
	j.mu.Unlock()

	for _, ev := range events {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := handle(ev); err != nil {
			return err
		}
	}
	return nil
}

// MemorySnapshotStore is an in-process SnapshotStore backed by a map.
type MemorySnapshotStore struct {
	mu        sync.Mutex
	snapshots map[string]*State
}

// NewMemorySnapshotStore returns an empty MemorySnapshotStore.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snapshots: make(map[string]*State)}
}

func (s *MemorySnapshotStore) SaveSnapshot(ctx context.Context, persistenceId string, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[persistenceId] = state.Copy()
	return nil
}

func (s *MemorySnapshotStore) LoadSnapshot(ctx context.Context, persistenceId string) (*State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.snapshots[persistenceId]
	if !ok {
		return nil, false, nil
	}
	return state.Copy(), true, nil
}
