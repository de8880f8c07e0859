package recovery

import (
	"testing"
	"time"

	"github.com/webitel/cluster-sharding/internal/actorkit"
)

func TestAllAtOnceEmptySetSchedulesNothing(t *testing.T) {
	sys := actorkit.NewSystem("test", nil)
	called := false
	AllAtOnce{}.Schedule(sys, nil, func(Batch) { called = true })
	if called {
		t.Fatalf("expected no batch for an empty id set")
	}
}

func TestAllAtOnceDeliversOneBatchWithEverything(t *testing.T) {
	sys := actorkit.NewSystem("test", nil)
	var got []Batch
	AllAtOnce{}.Schedule(sys, []string{"a", "b", "c"}, func(b Batch) { got = append(got, b) })

	if len(got) != 1 {
		t.Fatalf("expected exactly one batch, got %d", len(got))
	}
	if len(got[0]) != 3 {
		t.Fatalf("expected batch of size 3, got %d", len(got[0]))
	}
}

func TestConstantRatePartitionsAndPacesGroups(t *testing.T) {
	sys := actorkit.NewSystem("test", nil)
	strategy := ConstantRate{Frequency: 20 * time.Millisecond, NumberOfEntities: 2}

	type delivery struct {
		batch Batch
		at    time.Time
	}
	results := make(chan delivery, 8)
	start := time.Now()

	strategy.Schedule(sys, []string{"a", "b", "c", "d", "e"}, func(b Batch) {
		results <- delivery{batch: b, at: time.Now()}
	})

	var deliveries []delivery
	for i := 0; i < 3; i++ {
		select {
		case d := <-results:
			deliveries = append(deliveries, d)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for delivery %d", i)
		}
	}

	sizes := map[int]bool{}
	for _, d := range deliveries {
		sizes[len(d.batch)] = true
		if d.at.Sub(start) < 15*time.Millisecond {
			t.Fatalf("expected every batch to be deferred, got elapsed %v", d.at.Sub(start))
		}
	}
	if !sizes[2] || !sizes[1] {
		t.Fatalf("expected group sizes {2,2,1}, got deliveries %v", deliveries)
	}
}

func TestConstantRateEmptySetSchedulesNothing(t *testing.T) {
	sys := actorkit.NewSystem("test", nil)
	called := false
	ConstantRate{Frequency: time.Millisecond, NumberOfEntities: 2}.Schedule(sys, nil, func(Batch) { called = true })
	if called {
		t.Fatalf("expected no batch for an empty id set")
	}
}
