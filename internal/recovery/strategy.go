// Package recovery implements the pacing policies a PersistentShard uses
// to reinject RestartEntities batches for the ids it remembered at
// recovery time.
package recovery

import (
	"time"

	"github.com/webitel/cluster-sharding/internal/actorkit"
)

// Batch is one group of entity ids to be restarted together.
type Batch []string

// Strategy turns the full set of remembered ids into a schedule of
// Batch deliveries, fired on the given system's scheduler, each handed
// to onBatch when it resolves.
type Strategy interface {
	// Schedule arranges for onBatch to be called once per batch, and
	// returns immediately; callers do not block waiting for delivery. An
	// empty ids set schedules nothing.
	Schedule(system *actorkit.System, ids []string, onBatch func(Batch))
}

// AllAtOnce delivers every remembered id in a single batch immediately.
type AllAtOnce struct{}

// Schedule implements Strategy: a non-empty ids set yields exactly one
// batch, resolved synchronously; an empty set yields nothing.
func (AllAtOnce) Schedule(system *actorkit.System, ids []string, onBatch func(Batch)) {
	if len(ids) == 0 {
		return
	}
	batch := make(Batch, len(ids))
	copy(batch, ids)
	onBatch(batch)
}

// ConstantRate partitions ids into fixed-size groups and schedules group
// k (0-indexed) to resolve at (k+1)*Frequency after Schedule is called.
type ConstantRate struct {
	Frequency        time.Duration
	NumberOfEntities int
}

// Schedule implements Strategy. Groups preserve the insertion order of
// ids as given; the last group may be smaller than NumberOfEntities.
func (s ConstantRate) Schedule(system *actorkit.System, ids []string, onBatch func(Batch)) {
	n := s.NumberOfEntities
	if n <= 0 {
		n = 1
	}

	for start := 0; start < len(ids); start += n {
		end := start + n
		if end > len(ids) {
			end = len(ids)
		}
		batch := make(Batch, end-start)
		copy(batch, ids[start:end])

		groupIndex := start / n
		delay := time.Duration(groupIndex+1) * s.Frequency
		system.ScheduleOnce(delay, func() { onBatch(batch) })
	}
}
