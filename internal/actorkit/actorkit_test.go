package actorkit

import (
	"context"
	"testing"
	"time"
)

type recordingActor struct {
	received chan any
	stopped  chan struct{}
}

func (a *recordingActor) PreStart(ctx *Context) error { return nil }

func (a *recordingActor) Receive(ctx *ReceiveContext) {
	a.received <- ctx.Message()
}

func (a *recordingActor) PostStop(ctx *Context) error {
	close(a.stopped)
	return nil
}

func newRecordingActor() *recordingActor {
	return &recordingActor{received: make(chan any, 8), stopped: make(chan struct{})}
}

func TestSpawnDeliversMessagesInOrder(t *testing.T) {
	sys := NewSystem("test", nil)
	a := newRecordingActor()
	pid, err := sys.Spawn("worker", a)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	_ = pid.Tell(context.Background(), "one")
	_ = pid.Tell(context.Background(), "two")

	if got := <-a.received; got != "one" {
		t.Fatalf("expected one, got %v", got)
	}
	if got := <-a.received; got != "two" {
		t.Fatalf("expected two, got %v", got)
	}
}

func TestSpawnRejectsDuplicateName(t *testing.T) {
	sys := NewSystem("test", nil)
	if _, err := sys.Spawn("dup", newRecordingActor()); err != nil {
		t.Fatalf("first spawn: %v", err)
	}
	if _, err := sys.Spawn("dup", newRecordingActor()); err == nil {
		t.Fatalf("expected duplicate spawn to fail")
	}
}

func TestShutdownRunsPostStopAndNotifiesWatchers(t *testing.T) {
	sys := NewSystem("test", nil)
	a := newRecordingActor()
	pid, _ := sys.Spawn("leaf", a)

	watcher := newRecordingActor()
	watcherPid, _ := sys.Spawn("watcher", watcher)
	pid.Watch(watcherPid)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := pid.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	select {
	case <-a.stopped:
	case <-time.After(time.Second):
		t.Fatalf("expected PostStop to run")
	}

	select {
	case msg := <-watcher.received:
		term, ok := msg.(Terminated)
		if !ok || term.PID != pid {
			t.Fatalf("expected Terminated{pid}, got %v", msg)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected watcher to receive Terminated")
	}
}

func TestTellAfterShutdownIsDeadLettered(t *testing.T) {
	sys := NewSystem("test", nil)
	pid, _ := sys.Spawn("gone", newRecordingActor())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = pid.Shutdown(ctx)

	_ = pid.Tell(context.Background(), "too late")

	select {
	case letter := <-sys.DeadLetters():
		if letter.To != pid || letter.Message != "too late" {
			t.Fatalf("unexpected dead letter: %+v", letter)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a dead letter")
	}
}

func TestScheduleOnceCancel(t *testing.T) {
	sys := NewSystem("test", nil)
	fired := make(chan struct{})
	cancel := sys.ScheduleOnce(10*time.Millisecond, func() { close(fired) })
	cancel()

	select {
	case <-fired:
		t.Fatalf("expected cancelled callback not to fire")
	case <-time.After(50 * time.Millisecond):
	}
}
