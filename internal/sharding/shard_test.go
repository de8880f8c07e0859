package sharding

import (
	"testing"
	"time"

	"github.com/webitel/cluster-sharding/internal/actorkit"
	"github.com/webitel/cluster-sharding/internal/journal"
	"github.com/webitel/cluster-sharding/internal/recovery"
)

type appMsg struct {
	id      EntityId
	payload any
}

type triggerPassivate struct{}
type stopMsg struct{}

type testExtractor struct{}

func (testExtractor) ExtractEntityId(m any) (EntityId, any, bool) {
	if am, ok := m.(appMsg); ok {
		return am.id, am.payload, true
	}
	return "", nil, false
}

func (testExtractor) ExtractShardId(m any) (ShardId, bool) { return "", false }

// echoEntity is the test worker: it pushes every application payload it
// receives onto a shared channel, stops itself on stopMsg, and on
// triggerPassivate asks the shard to passivate it.
type echoEntity struct {
	received chan any
	shardRef **actorkit.PID
}

func (e *echoEntity) PreStart(ctx *actorkit.Context) error { return nil }

func (e *echoEntity) Receive(ctx *actorkit.ReceiveContext) {
	switch ctx.Message().(type) {
	case stopMsg:
		ctx.Self().RequestStop()
	case triggerPassivate:
		ctx.Tell(*e.shardRef, Passivate{StopMessage: stopMsg{}})
		e.received <- "passivate-sent"
	default:
		e.received <- ctx.Message()
	}
}

func (e *echoEntity) PostStop(ctx *actorkit.Context) error { return nil }

// recorder is the test stand-in for a coordinator proxy / parent: every
// message it receives is pushed onto inbox.
type recorder struct {
	inbox chan any
}

func (r *recorder) PreStart(ctx *actorkit.Context) error { return nil }
func (r *recorder) Receive(ctx *actorkit.ReceiveContext) { r.inbox <- ctx.Message() }
func (r *recorder) PostStop(ctx *actorkit.Context) error { return nil }

func mustReceive[T any](t *testing.T, ch chan any, want T) T {
	t.Helper()
	select {
	case got := <-ch:
		typed, ok := got.(T)
		if !ok {
			t.Fatalf("expected %T, got %T (%v)", want, got, got)
		}
		return typed
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %T", want)
	}
	panic("unreachable")
}

func assertNothingArrives(t *testing.T, ch chan any, within time.Duration) {
	t.Helper()
	select {
	case got := <-ch:
		t.Fatalf("expected nothing to arrive, got %v", got)
	case <-time.After(within):
	}
}

func newHarness(t *testing.T) (sys *actorkit.System, shardPID *actorkit.PID, shard *Shard, client *actorkit.PID, clientInbox chan any, entityReceived chan any) {
	t.Helper()
	sys = actorkit.NewSystem("test", nil)
	entityReceived = make(chan any, 32)
	shardRefHolder := new(*actorkit.PID)

	entityProps := func() actorkit.Actor {
		return &echoEntity{received: entityReceived, shardRef: shardRefHolder}
	}

	shard = NewShard("TestEntity", "shard-1", entityProps, testExtractor{},
		WithBufferSize(100),
		WithHandOffStopperProps(NewHandOffStopperProps()),
		WithHandOffStopMessage(stopMsg{}),
	)

	var err error
	shardPID, err = sys.Spawn(shard.Name(), shard)
	if err != nil {
		t.Fatalf("spawn shard: %v", err)
	}
	*shardRefHolder = shardPID

	clientInbox = make(chan any, 32)
	client, err = sys.Spawn("client", &recorder{inbox: clientInbox})
	if err != nil {
		t.Fatalf("spawn client: %v", err)
	}

	return sys, shardPID, shard, client, clientInbox, entityReceived
}

func syncWithShard(t *testing.T, shardPID, client *actorkit.PID, clientInbox chan any) {
	t.Helper()
	shardPID.Forward(client, GetShardStats{})
	mustReceive[ShardStats](t, clientInbox, ShardStats{})
}

// Scenario 1: lazy spawn and direct route.
func TestLazySpawnAndDirectRoute(t *testing.T) {
	_, shardPID, shard, client, _, entityReceived := newHarness(t)

	shardPID.Forward(client, appMsg{id: "a", payload: 1})
	mustReceive[int](t, entityReceived, 0)

	if _, ok := shard.refById["a"]; !ok {
		t.Fatalf("expected worker a to be registered")
	}
	if _, ok := shard.state["a"]; !ok {
		t.Fatalf("expected a to be remembered")
	}
}

// Scenario 2: passivation round trip.
func TestPassivationRoundTrip(t *testing.T) {
	_, shardPID, shard, client, clientInbox, entityReceived := newHarness(t)

	shardPID.Forward(client, appMsg{id: "b", payload: 0})
	mustReceive[int](t, entityReceived, 0)

	oldWorker := shard.refById["b"]
	oldWorker.Forward(client, triggerPassivate{})
	mustReceive[string](t, entityReceived, "")

	shardPID.Forward(client, appMsg{id: "b", payload: 2})
	shardPID.Forward(client, appMsg{id: "b", payload: 3})

	got1 := mustReceive[int](t, entityReceived, 0)
	got2 := mustReceive[int](t, entityReceived, 0)
	if got1 != 2 || got2 != 3 {
		t.Fatalf("expected buffered flush order 2,3, got %d,%d", got1, got2)
	}

	syncWithShard(t, shardPID, client, clientInbox)
	if shard.buffers.Contains("b") {
		t.Fatalf("expected buffering window for b to be closed")
	}
	if _, ok := shard.state["b"]; !ok {
		t.Fatalf("expected b to still be remembered")
	}
	if shard.refById["b"] == oldWorker {
		t.Fatalf("expected a fresh worker to have been spawned")
	}
}

// Scenario 3: buffer overflow.
func TestBufferOverflowDropsExcessToDeadLetters(t *testing.T) {
	sys, shardPID, shard, client, clientInbox, entityReceived := newHarness(t)
	_ = sys

	// bufferSize=1 for this scenario specifically.
	shard.bufferSize = 1

	shardPID.Forward(client, appMsg{id: "c", payload: "seed"})
	mustReceive[string](t, entityReceived, "")

	worker := shard.refById["c"]
	worker.Forward(client, triggerPassivate{})
	mustReceive[string](t, entityReceived, "")

	shardPID.Forward(client, appMsg{id: "c", payload: "m1"})
	syncWithShard(t, shardPID, client, clientInbox)
	if shard.buffers.GetOrEmpty("c").Len() != 1 {
		t.Fatalf("expected m1 to have been buffered")
	}

	shardPID.Forward(client, appMsg{id: "c", payload: "m2"})

	select {
	case letter := <-sys.DeadLetters():
		if letter.Message != "m2" {
			t.Fatalf("expected m2 to be dead-lettered, got %v", letter.Message)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected m2 to be dead-lettered")
	}

	if shard.buffers.GetOrEmpty("c").Len() != 1 {
		t.Fatalf("expected buffer to remain at size 1 after overflow")
	}
}

// Scenario 4: hand-off with zero entities.
func TestHandOffEmptyShardRepliesAndStops(t *testing.T) {
	sys, shardPID, shard, client, clientInbox, _ := newHarness(t)

	shardPID.Forward(client, HandOff{ShardId: shard.shardId})
	mustReceive[ShardStopped](t, clientInbox, ShardStopped{})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := sys.Lookup(shard.Name()); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected shard to have stopped")
}

// Scenario 5: hand-off with live entities.
func TestHandOffNonEmptyDrainsAndStops(t *testing.T) {
	sys, shardPID, shard, client, clientInbox, entityReceived := newHarness(t)

	shardPID.Forward(client, appMsg{id: "x", payload: 1})
	mustReceive[int](t, entityReceived, 0)
	shardPID.Forward(client, appMsg{id: "y", payload: 2})
	mustReceive[int](t, entityReceived, 0)

	shardPID.Forward(client, HandOff{ShardId: shard.shardId})

	stopperName := shard.handOffStopperName()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := sys.Lookup(stopperName); ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A message for a live entity during hand-off must not be dispatched.
	shardPID.Forward(client, appMsg{id: "x", payload: 999})
	assertNothingArrives(t, entityReceived, 150*time.Millisecond)

	// A second HandOff while already handing off is ignored, not fatal.
	shardPID.Forward(client, HandOff{ShardId: shard.shardId})

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := sys.Lookup(shard.Name()); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected shard to stop once the hand-off stopper finished draining")
	_ = clientInbox
}

// Scenario 6: persistent recovery with the constant-rate strategy.
func TestPersistentRecoveryConstantRate(t *testing.T) {
	sys := actorkit.NewSystem("test", nil)
	j := journal.NewMemoryJournal()
	snapshots := journal.NewMemorySnapshotStore()

	persistenceId := "/sharding/TestEntityShard/shard-1"
	ctx := t.Context()
	_ = j.Append(ctx, persistenceId, journal.Event{Started: &journal.EntityStarted{EntityId: "a"}})
	_ = j.Append(ctx, persistenceId, journal.Event{Started: &journal.EntityStarted{EntityId: "b"}})
	_ = j.Append(ctx, persistenceId, journal.Event{Started: &journal.EntityStarted{EntityId: "c"}})

	entityReceived := make(chan any, 32)
	entityProps := func() actorkit.Actor {
		return &echoEntity{received: entityReceived, shardRef: new(*actorkit.PID)}
	}

	parentInbox := make(chan any, 8)
	parent, err := sys.Spawn("parent", &recorder{inbox: parentInbox})
	if err != nil {
		t.Fatalf("spawn parent: %v", err)
	}

	shard := NewPersistentShard("TestEntity", "shard-1", entityProps, testExtractor{}, j, snapshots,
		PersistentSettings{
			SnapshotAfter:        100,
			EntityRestartBackoff: 50 * time.Millisecond,
			RecoveryStrategy:     recovery.ConstantRate{Frequency: 100 * time.Millisecond, NumberOfEntities: 2},
		},
		WithParent(parent),
	)

	if _, err := sys.Spawn(shard.Name(), shard); err != nil {
		t.Fatalf("spawn shard: %v", err)
	}

	mustReceive[ShardInitialized](t, parentInbox, ShardInitialized{})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, a := sys.Lookup("TestEntity/shard-1/a")
		_, b := sys.Lookup("TestEntity/shard-1/b")
		_, c := sys.Lookup("TestEntity/shard-1/c")
		if a && b && c {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	_, a := sys.Lookup("TestEntity/shard-1/a")
	_, b := sys.Lookup("TestEntity/shard-1/b")
	_, c := sys.Lookup("TestEntity/shard-1/c")
	if !a || !b || !c {
		t.Fatalf("expected all three remembered entities to have restarted, got a=%v b=%v c=%v", a, b, c)
	}

	select {
	case extra := <-parentInbox:
		t.Fatalf("expected exactly one ShardInitialized, got extra message %v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}
