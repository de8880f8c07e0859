package host

import (
	"context"
	"testing"
	"time"

	"github.com/webitel/cluster-sharding/internal/actorkit"
	"github.com/webitel/cluster-sharding/internal/sharding"
)

type routedMsg struct {
	shardId sharding.ShardId
	id      sharding.EntityId
	payload any
}

type routingExtractor struct{}

func (routingExtractor) ExtractEntityId(m any) (sharding.EntityId, any, bool) {
	if rm, ok := m.(routedMsg); ok {
		return rm.id, rm.payload, true
	}
	return "", nil, false
}

func (routingExtractor) ExtractShardId(m any) (sharding.ShardId, bool) {
	if rm, ok := m.(routedMsg); ok {
		return rm.shardId, true
	}
	return "", false
}

type noopEntity struct{ received chan any }

func (e *noopEntity) PreStart(*actorkit.Context) error { return nil }
func (e *noopEntity) Receive(ctx *actorkit.ReceiveContext) {
	if _, ok := ctx.Message().(sharding.Stop); ok {
		ctx.Self().RequestStop()
		return
	}
	e.received <- ctx.Message()
}
func (e *noopEntity) PostStop(*actorkit.Context) error { return nil }

func newTestHost(t *testing.T, received chan any) (*actorkit.System, *ShardHost) {
	t.Helper()
	sys := actorkit.NewSystem("test", nil)
	factory := func(shardId sharding.ShardId) *sharding.Shard {
		return sharding.NewShard("Widget", shardId, func() actorkit.Actor {
			return &noopEntity{received: received}
		}, routingExtractor{})
	}
	h := NewShardHost(sys, "Widget", factory, routingExtractor{}, WithStatsTimeout(time.Second))
	return sys, h
}

func TestDeliverLazilySpawnsOneShardPerId(t *testing.T) {
	received := make(chan any, 8)
	sys, h := newTestHost(t, received)

	h.Deliver(nil, routedMsg{shardId: "s1", id: "a", payload: 1})
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatalf("expected entity a to receive its message")
	}

	if _, ok := sys.Lookup("shard/Widget/s1"); !ok {
		t.Fatalf("expected shard s1 to have been spawned")
	}

	h.Deliver(nil, routedMsg{shardId: "s1", id: "b", payload: 2})
	<-received

	ids := h.ShardIds()
	if len(ids) != 1 {
		t.Fatalf("expected exactly one live shard, got %v", ids)
	}
}

func TestStatsAggregatesAcrossShards(t *testing.T) {
	received := make(chan any, 8)
	_, h := newTestHost(t, received)

	h.Deliver(nil, routedMsg{shardId: "s1", id: "a", payload: 1})
	<-received
	h.Deliver(nil, routedMsg{shardId: "s2", id: "b", payload: 2})
	<-received

	stats := h.Stats(context.Background())
	if len(stats) != 2 {
		t.Fatalf("expected stats from 2 shards, got %d", len(stats))
	}
	for _, s := range stats {
		if s.EntityCount != 1 {
			t.Fatalf("expected each shard to report 1 entity, got %d for %s", s.EntityCount, s.ShardId)
		}
	}
}

func TestShutdownDrainsEveryShard(t *testing.T) {
	received := make(chan any, 8)
	sys, h := newTestHost(t, received)

	h.Deliver(nil, routedMsg{shardId: "s1", id: "a", payload: 1})
	<-received

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := sys.Lookup("shard/Widget/s1"); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected shard s1 to have stopped")
}

func TestHandOffOneLeavesOtherShardsRunning(t *testing.T) {
	received := make(chan any, 8)
	sys, h := newTestHost(t, received)

	h.Deliver(nil, routedMsg{shardId: "s1", id: "a", payload: 1})
	<-received
	h.Deliver(nil, routedMsg{shardId: "s2", id: "b", payload: 2})
	<-received

	if err := h.HandOffOne(context.Background(), "s1"); err != nil {
		t.Fatalf("handoff: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := sys.Lookup("shard/Widget/s1"); !ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := sys.Lookup("shard/Widget/s1"); ok {
		t.Fatalf("expected shard s1 to have stopped")
	}
	if _, ok := sys.Lookup("shard/Widget/s2"); !ok {
		t.Fatalf("expected shard s2 to still be running")
	}
}
