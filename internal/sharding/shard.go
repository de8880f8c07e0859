// Package sharding implements the per-partition supervisor that
// multiplexes a shard's traffic onto an on-demand set of entity workers:
// lazy spawn, passivation buffering, hand-off, and, for the remembered
// variant, journaled recovery.
package sharding

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/webitel/cluster-sharding/internal/actorkit"
	"github.com/webitel/cluster-sharding/internal/buffer"
	"github.com/webitel/cluster-sharding/internal/journal"
	"github.com/webitel/cluster-sharding/internal/recovery"
)

type status int

const (
	statusNormal status = iota
	statusHandingOff
	statusStopped
)

// Shard is the non-persistent state machine: routing, lifecycle,
// passivation, hand-off. Remember-entities durability is delegated
// entirely to the installed PersistenceStrategy; NewShard installs a
// no-op one, NewPersistentShard installs a journaled one. Both share this
// same type, implementing actorkit.Actor so a Shard is itself spawned
// and hosted on a System like any other actor.
type Shard struct {
	typeName            string
	shardId             ShardId
	bufferSize          int
	entityProps         EntityProps
	extractor           MessageExtractor
	handOffStopperProps HandOffStopperProps
	handOffStopMessage  any
	parent              *actorkit.PID
	persistence         PersistenceStrategy
	recoveryStrategy    recovery.Strategy

	self   *actorkit.PID
	system *actorkit.System
	logger *slog.Logger

	idByRef     map[*actorkit.PID]EntityId
	refById     map[EntityId]*actorkit.PID
	passivating map[*actorkit.PID]struct{}
	buffers     *buffer.Map[EntityId]
	state       map[EntityId]struct{}

	handOffStopper *actorkit.PID
	status         status
	announced      bool
}

// NewShard constructs a plain Shard: nothing it remembers survives a
// restart.
func NewShard(typeName string, shardId ShardId, entityProps EntityProps, extractor MessageExtractor, opts ...Option) *Shard {
	s := &Shard{
		typeName:            typeName,
		shardId:             shardId,
		bufferSize:          defaultBufferSize,
		entityProps:         entityProps,
		extractor:           extractor,
		persistence:         noopPersistence{},
		handOffStopperProps: NewHandOffStopperProps(),
		handOffStopMessage:  Stop{},
		idByRef:     make(map[*actorkit.PID]EntityId),
		refById:     make(map[EntityId]*actorkit.PID),
		passivating: make(map[*actorkit.PID]struct{}),
		buffers:     buffer.NewMap[EntityId](),
		state:       make(map[EntityId]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PersistentSettings tunes the remember-entities behavior of a Shard
// built with NewPersistentShard.
type PersistentSettings struct {
	SnapshotAfter        int
	EntityRestartBackoff time.Duration
	RecoveryStrategy     recovery.Strategy
	JournalPluginId      string
	SnapshotPluginId     string
}

// NewPersistentShard constructs a Shard whose entity membership is
// durable: entity starts and stops are journaled, State is snapshotted
// periodically, and recovery replays the log before restarting remembered
// entities per settings.RecoveryStrategy.
func NewPersistentShard(typeName string, shardId ShardId, entityProps EntityProps, extractor MessageExtractor, j journal.Journal, snapshots journal.SnapshotStore, settings PersistentSettings, opts ...Option) *Shard {
	s := NewShard(typeName, shardId, entityProps, extractor, opts...)

	persistenceId := fmt.Sprintf("/sharding/%sShard/%s", typeName, shardId)
	s.persistence = newJournaledPersistence(persistenceId, j, snapshots, settings.SnapshotAfter, settings.EntityRestartBackoff)

	s.recoveryStrategy = settings.RecoveryStrategy
	if s.recoveryStrategy == nil {
		s.recoveryStrategy = recovery.AllAtOnce{}
	}
	return s
}

// ShardName is the actor name a Shard for (typeName, shardId) is spawned
// under. Exported so a collaborator holding only the pair can address the
// Shard by name (e.g. via System.Lookup) without a direct reference.
func ShardName(typeName string, shardId ShardId) string {
	return fmt.Sprintf("shard/%s/%s", typeName, shardId)
}

// Name is the actor name a Shard should be spawned under: unique per
// (typeName, shardId) pair within a System.
func (s *Shard) Name() string {
	return ShardName(s.typeName, s.shardId)
}

// PreStart implements actorkit.Actor.
func (s *Shard) PreStart(ctx *actorkit.Context) error {
	s.self = ctx.Self()
	s.system = ctx.System()
	s.logger = ctx.Logger()
	s.persistence.Init(s)
	return nil
}

// PostStop implements actorkit.Actor.
func (s *Shard) PostStop(ctx *actorkit.Context) error {
	s.logger.Debug("SHARD_STOPPED", "shard_id", s.shardId)
	return nil
}

// Receive implements actorkit.Actor.
func (s *Shard) Receive(ctx *actorkit.ReceiveContext) {
	switch msg := ctx.Message().(type) {
	case actorkit.Terminated:
		s.handleTerminated(msg.PID)
		return
	case HandOff:
		s.handleHandOff(ctx, msg)
		return
	case recoveryCompleted:
		s.handleRecoveryCompleted(msg)
		return
	}

	if s.status != statusNormal {
		s.logger.Debug("MESSAGE_DISCARDED_DURING_HANDOFF", "type", fmt.Sprintf("%T", ctx.Message()))
		return
	}

	switch msg := ctx.Message().(type) {
	case Passivate:
		s.handlePassivate(ctx, msg)
	case RestartEntity:
		s.restartEntities([]EntityId{msg.EntityId})
	case RestartEntities:
		s.restartEntities(msg.EntityIds)
	case GetCurrentShardState:
		s.handleGetCurrentShardState(ctx)
	case GetShardStats:
		s.handleGetShardStats(ctx)
	default:
		id, payload, ok := s.extractor.ExtractEntityId(ctx.Message())
		if !ok {
			ctx.Unhandled()
			return
		}
		s.route(ctx, id, payload)
	}
}

func (s *Shard) handleTerminated(ref *actorkit.PID) {
	if s.handOffStopper != nil && ref == s.handOffStopper {
		s.stopSelf()
		return
	}
	if s.status != statusNormal {
		return
	}
	if _, ok := s.idByRef[ref]; ok {
		s.entityTerminated(ref)
	}
}

// route implements the routing algorithm of an inbound application
// message: empty ids are dead-lettered, ids with no open buffering window
// go straight to deliverTo, and everything else either joins the buffer
// or is dropped once the total buffered count would exceed bufferSize.
func (s *Shard) route(ctx *actorkit.ReceiveContext, id EntityId, payload any) {
	if id == "" {
		s.logger.Warn("ROUTING_KEY_EMPTY")
		s.system.DeadLetter(ctx.Sender(), nil, payload)
		return
	}
	s.routeToEntity(id, payload, ctx.Sender())
}

func (s *Shard) routeToEntity(id EntityId, payload any, sender *actorkit.PID) {
	if !s.buffers.Contains(id) {
		s.deliverTo(id, payload, sender)
		return
	}
	if s.buffers.TotalSize() >= s.bufferSize {
		s.logger.Debug("BUFFER_OVERFLOW", "entity_id", id, "buffer_size", s.bufferSize)
		s.system.DeadLetter(sender, nil, payload)
		return
	}
	s.buffers.Append(id, buffer.Envelope{Message: payload, Sender: sender})
}

func (s *Shard) deliverTo(id EntityId, payload any, sender *actorkit.PID) {
	if ref, ok := s.refById[id]; ok {
		ref.Forward(sender, payload)
		return
	}
	s.persistence.OnDeliverMissingChild(s, id, payload, sender)
}

// getEntity returns the live worker for id, spawning one from
// entityProps if none exists yet. A spawn failure is logged and reported
// as a nil PID; callers must treat that as a failed delivery.
func (s *Shard) getEntity(id EntityId) *actorkit.PID {
	if ref, ok := s.refById[id]; ok {
		return ref
	}

	name := s.childName(id)
	pid, err := s.system.Spawn(name, s.entityProps())
	if err != nil {
		s.logger.Error("ENTITY_SPAWN_FAILED", "entity_id", id, "err", err)
		return nil
	}

	pid.Watch(s.self)
	s.idByRef[pid] = id
	s.refById[id] = pid
	s.state[id] = struct{}{}
	return pid
}

func (s *Shard) handlePassivate(ctx *actorkit.ReceiveContext, msg Passivate) {
	w := ctx.Sender()
	id, ok := s.idByRef[w]
	if !ok {
		return
	}
	if s.buffers.Contains(id) {
		return
	}

	s.buffers.Add(id)
	s.passivating[w] = struct{}{}
	w.Forward(s.self, msg.StopMessage)
}

func (s *Shard) entityTerminated(ref *actorkit.PID) {
	id, ok := s.idByRef[ref]
	if !ok {
		return
	}
	_, wasPassivating := s.passivating[ref]
	delete(s.passivating, ref)
	delete(s.idByRef, ref)
	delete(s.refById, id)

	if !s.buffers.GetOrEmpty(id).IsEmpty() {
		event := journal.Event{Started: &journal.EntityStarted{EntityId: id, Timestamp: time.Now()}}
		s.persistence.OnChange(s, event, func() {
			s.sendMsgBuffer(id)
		})
		return
	}

	s.persistence.OnUnexpectedTermination(s, id, wasPassivating, func() {
		s.passivateCompleted(id)
	})
}

func (s *Shard) passivateCompleted(id EntityId) {
	s.buffers.Remove(id)
	delete(s.state, id)
	s.persistence.OnCleanStop(id)
}

// sendMsgBuffer closes the buffering window for id and, if anything had
// accumulated, ensures a live worker and replays the backlog through the
// routing algorithm in order, now that the entity is no longer buffering.
func (s *Shard) sendMsgBuffer(id EntityId) {
	buf := s.buffers.GetOrEmpty(id)
	s.buffers.Remove(id)
	if buf.IsEmpty() {
		return
	}

	ref := s.getEntity(id)
	if ref == nil {
		buf.ForEach(func(env buffer.Envelope) {
			sender, _ := env.Sender.(*actorkit.PID)
			s.system.DeadLetter(sender, nil, env.Message)
		})
		return
	}

	buf.ForEach(func(env buffer.Envelope) {
		sender, _ := env.Sender.(*actorkit.PID)
		s.routeToEntity(id, env.Message, sender)
	})
}

// bufferMessage opens id's buffering window (if not already open) and
// appends a pending delivery. It is used by a journaled persistence
// strategy to hold a message until its EntityStarted commits.
func (s *Shard) bufferMessage(id EntityId, payload any, sender *actorkit.PID) {
	s.buffers.Append(id, buffer.Envelope{Message: payload, Sender: sender})
}

func (s *Shard) restartEntities(ids []EntityId) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		s.getEntity(id)
	}
}

func (s *Shard) handleGetCurrentShardState(ctx *actorkit.ReceiveContext) {
	ids := make([]EntityId, 0, len(s.refById))
	for id := range s.refById {
		ids = append(ids, id)
	}
	ctx.Tell(ctx.Sender(), CurrentShardState{ShardId: s.shardId, EntityIds: ids})
}

func (s *Shard) handleGetShardStats(ctx *actorkit.ReceiveContext) {
	ctx.Tell(ctx.Sender(), ShardStats{ShardId: s.shardId, EntityCount: len(s.state)})
}

func (s *Shard) handleHandOff(ctx *actorkit.ReceiveContext, msg HandOff) {
	if msg.ShardId != s.shardId {
		s.logger.Warn("HANDOFF_FOREIGN_SHARD", "requested", msg.ShardId, "owned", s.shardId)
		return
	}
	if s.status == statusHandingOff {
		s.logger.Warn("HANDOFF_ALREADY_IN_PROGRESS", "shard_id", s.shardId)
		return
	}
	if s.status == statusStopped {
		return
	}

	if len(s.refById) == 0 {
		ctx.Tell(ctx.Sender(), ShardStopped{ShardId: s.shardId})
		s.status = statusStopped
		s.self.RequestStop()
		return
	}

	if s.handOffStopperProps == nil {
		s.logger.Error("HANDOFF_STOPPER_PROPS_UNSET", "shard_id", s.shardId)
		return
	}

	entities := make([]*actorkit.PID, 0, len(s.refById))
	for _, ref := range s.refById {
		entities = append(entities, ref)
	}

	stopper := s.handOffStopperProps(s.shardId, ctx.Sender(), entities, s.handOffStopMessage)
	pid, err := s.system.Spawn(s.handOffStopperName(), stopper)
	if err != nil {
		s.logger.Error("HANDOFF_STOPPER_SPAWN_FAILED", "shard_id", s.shardId, "err", err)
		return
	}

	pid.Watch(s.self)
	s.handOffStopper = pid
	s.status = statusHandingOff
}

func (s *Shard) stopSelf() {
	s.status = statusStopped
	s.self.RequestStop()
}

func (s *Shard) handleRecoveryCompleted(msg recoveryCompleted) {
	for _, id := range msg.entityIds {
		s.state[id] = struct{}{}
	}

	s.recoveryStrategy.Schedule(s.system, msg.entityIds, func(batch recovery.Batch) {
		s.self.Forward(nil, RestartEntities{EntityIds: []EntityId(batch)})
	})

	s.announceInitialized()
}

func (s *Shard) announceInitialized() {
	if s.announced {
		return
	}
	s.announced = true
	if s.parent != nil {
		s.parent.Forward(s.self, ShardInitialized{ShardId: s.shardId})
	}
}

func (s *Shard) childName(id EntityId) string {
	return fmt.Sprintf("%s/%s/%s", s.typeName, s.shardId, url.PathEscape(id))
}

func (s *Shard) handOffStopperName() string {
	return fmt.Sprintf("%s/%s/handoff-stopper", s.typeName, s.shardId)
}
