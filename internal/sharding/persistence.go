package sharding

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/webitel/cluster-sharding/internal/actorkit"
	"github.com/webitel/cluster-sharding/internal/journal"
)

// PersistenceStrategy is the capability a Shard delegates its durability
// decisions to. A no-op strategy realizes the plain Shard; a journaled
// strategy realizes remember-entities. Both variants share the same
// Shard state machine; only these five hooks differ.
type PersistenceStrategy interface {
	// Init runs once, from the Shard's PreStart (synchronously inside
	// System.Spawn, before the mailbox loop starts). It is responsible for
	// eventually calling
	// shard.announceInitialized(), synchronously for the plain variant or
	// after recovery completes for the journaled one.
	Init(shard *Shard)

	// OnChange persists event (when durable) and always invokes apply
	// afterwards to mutate in-memory state; apply runs before the next
	// mailbox message is processed, preserving the commit-order
	// guarantee trivially since the Shard never persists concurrently.
	OnChange(shard *Shard, event journal.Event, apply func())

	// OnDeliverMissingChild runs when deliverTo finds no live worker for
	// id. The plain variant spawns and forwards immediately; the
	// journaled variant buffers and waits for EntityStarted to commit.
	OnDeliverMissingChild(shard *Shard, id EntityId, payload any, sender *actorkit.PID)

	// OnUnexpectedTermination runs when an entity's worker terminates
	// with nothing buffered for it. completeStop, if called, commits
	// EntityStopped and removes id from remembered state; a strategy
	// that instead schedules a restart must not call it.
	OnUnexpectedTermination(shard *Shard, id EntityId, wasPassivating bool, completeStop func())

	// OnCleanStop runs whenever completeStop actually executes (clean
	// passivation or a committed unexpected stop), letting the strategy
	// reset any per-id flap tracking.
	OnCleanStop(id EntityId)
}


// noopPersistence realizes the plain Shard: nothing is durable, every
// change applies synchronously, and unexpected terminations are treated
// exactly like passivation completing.
type noopPersistence struct{}

func (noopPersistence) Init(shard *Shard) {
	shard.announceInitialized()
}

func (noopPersistence) OnChange(shard *Shard, event journal.Event, apply func()) {
	apply()
}

func (noopPersistence) OnDeliverMissingChild(shard *Shard, id EntityId, payload any, sender *actorkit.PID) {
	ref := shard.getEntity(id)
	ref.Forward(sender, payload)
}

func (noopPersistence) OnUnexpectedTermination(shard *Shard, id EntityId, wasPassivating bool, completeStop func()) {
	completeStop()
}

func (noopPersistence) OnCleanStop(id EntityId) {}

// journaledPersistence realizes remember-entities: a per-shard journal of
// EntityStarted/EntityStopped events, periodic State snapshots, and
// back-off restart of entities that terminate unexpectedly rather than
// via passivation.
type journaledPersistence struct {
	persistenceId    string
	journal          journal.Journal
	snapshots        journal.SnapshotStore
	snapshotAfter    int
	restartBackoff   time.Duration
	eventCount       int

	flap map[EntityId]*flapTracker
}

type flapTracker struct {
	backoff *backoff.ExponentialBackOff
	breaker *gobreaker.CircuitBreaker[any]
}

func newJournaledPersistence(persistenceId string, j journal.Journal, snapshots journal.SnapshotStore, snapshotAfter int, restartBackoff time.Duration) *journaledPersistence {
	return &journaledPersistence{
		persistenceId:  persistenceId,
		journal:        j,
		snapshots:      snapshots,
		snapshotAfter:  snapshotAfter,
		restartBackoff: restartBackoff,
		flap:           make(map[EntityId]*flapTracker),
	}
}

func (p *journaledPersistence) Init(shard *Shard) {
	go p.recover(shard)
}

func (p *journaledPersistence) recover(shard *Shard) {
	ctx := context.Background()
	state := journal.NewState()

	if snapshot, ok, err := p.snapshots.LoadSnapshot(ctx, p.persistenceId); err != nil {
		shard.logger.Error("SNAPSHOT_LOAD_FAILED", "persistence_id", p.persistenceId, "err", err)
	} else if ok {
		state = snapshot
	}

	err := p.journal.Replay(ctx, p.persistenceId, func(ev journal.Event) error {
		state.Apply(ev)
		return nil
	})
	if err != nil {
		shard.logger.Error("JOURNAL_REPLAY_FAILED", "persistence_id", p.persistenceId, "err", err)
	}

	ids := make([]EntityId, 0, len(state.Entities))
	for id := range state.Entities {
		ids = append(ids, id)
	}

	shard.self.Forward(nil, recoveryCompleted{entityIds: ids})
}

func (p *journaledPersistence) OnChange(shard *Shard, event journal.Event, apply func()) {
	ctx := context.Background()
	if err := p.journal.Append(ctx, p.persistenceId, event); err != nil {
		shard.logger.Error("JOURNAL_APPEND_FAILED", "persistence_id", p.persistenceId, "err", err)
	}
	apply()

	p.eventCount++
	p.saveSnapshotWhenNeeded(shard)
}

func (p *journaledPersistence) saveSnapshotWhenNeeded(shard *Shard) {
	if p.eventCount == 0 || p.eventCount%p.snapshotAfter != 0 {
		return
	}

	state := journal.NewState()
	for id := range shard.state {
		state.Entities[id] = struct{}{}
	}

	if err := p.snapshots.SaveSnapshot(context.Background(), p.persistenceId, state); err != nil {
		shard.logger.Warn("SNAPSHOT_SAVE_FAILED", "persistence_id", p.persistenceId, "err", err)
		return
	}
	shard.logger.Debug("SNAPSHOT_SAVED", "persistence_id", p.persistenceId, "sequence", p.eventCount)
}

func (p *journaledPersistence) OnDeliverMissingChild(shard *Shard, id EntityId, payload any, sender *actorkit.PID) {
	shard.bufferMessage(id, payload, sender)

	event := journal.Event{Started: &journal.EntityStarted{EntityId: id, Timestamp: time.Now()}}
	p.OnChange(shard, event, func() {
		shard.state[id] = struct{}{}
		shard.sendMsgBuffer(id)
	})
}

func (p *journaledPersistence) OnUnexpectedTermination(shard *Shard, id EntityId, wasPassivating bool, completeStop func()) {
	if wasPassivating {
		event := journal.Event{Stopped: &journal.EntityStopped{EntityId: id, Timestamp: time.Now()}}
		p.OnChange(shard, event, completeStop)
		return
	}

	tracker := p.trackerFor(id)
	delay := tracker.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = p.restartBackoff
	}

	_, _ = tracker.breaker.Execute(func() (any, error) {
		return nil, fmt.Errorf("entity %s terminated unexpectedly", id)
	})
	if tracker.breaker.State() == gobreaker.StateOpen {
		shard.logger.Warn("ENTITY_FLAPPING", "entity_id", id, "persistence_id", p.persistenceId)
	}

	shard.logger.Debug("ENTITY_RESTART_SCHEDULED", "entity_id", id, "delay", delay)
	shard.system.ScheduleOnce(delay, func() {
		shard.self.Forward(nil, RestartEntity{EntityId: id})
	})
}

func (p *journaledPersistence) OnCleanStop(id EntityId) {
	delete(p.flap, id)
}

func (p *journaledPersistence) trackerFor(id EntityId) *flapTracker {
	if t, ok := p.flap[id]; ok {
		return t
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.restartBackoff
	eb.MaxInterval = 10 * p.restartBackoff
	eb.Multiplier = 2
	eb.RandomizationFactor = 0.2
	eb.MaxElapsedTime = 0

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        id,
		MaxRequests: 1,
		Timeout:     p.restartBackoff,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	t := &flapTracker{backoff: eb, breaker: cb}
	p.flap[id] = t
	return t
}
