package journal

import "context"

// Journal is an append-only, per-persistence-id event log with replay.
// A PersistentShard appends one Event per entity start/stop and replays
// its own persistence id's stream on recovery.
type Journal interface {
	// Append persists ev for persistenceId, in order relative to prior
	// Append calls for the same persistenceId.
	Append(ctx context.Context, persistenceId string, ev Event) error

	// Replay delivers every event previously appended for persistenceId,
	// in append order, to handle. It returns once replay is exhausted.
	Replay(ctx context.Context, persistenceId string, handle func(Event) error) error
}

// SnapshotStore holds the most recent State per persistence id, which
// recovery loads as its baseline before replaying the journal over it.
type SnapshotStore interface {
	// SaveSnapshot persists state as the latest snapshot for
	// persistenceId, superseding any earlier one.
	SaveSnapshot(ctx context.Context, persistenceId string, state *State) error

	// LoadSnapshot returns the latest snapshot for persistenceId, or
	// ok=false if none has been saved yet.
	LoadSnapshot(ctx context.Context, persistenceId string) (state *State, ok bool, err error)
}
