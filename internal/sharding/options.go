package sharding

import "github.com/webitel/cluster-sharding/internal/actorkit"

const defaultBufferSize = 1000

// Option customizes a Shard at construction time.
type Option func(*Shard)

// WithBufferSize overrides the hard cap on total buffered messages across
// all entities. The default is 1000.
func WithBufferSize(n int) Option {
	return func(s *Shard) { s.bufferSize = n }
}

// WithParent sets the PID that receives ShardInitialized once start-up
// (and, for a persistent shard, recovery) completes.
func WithParent(parent *actorkit.PID) Option {
	return func(s *Shard) { s.parent = parent }
}

// WithHandOffStopperProps overrides the template used to spawn the
// per-hand-off stopper worker. NewShard installs NewHandOffStopperProps()
// by default; this is for an embedder that needs custom draining behavior
// (e.g. a stop message that itself expects an acknowledgement).
func WithHandOffStopperProps(props HandOffStopperProps) Option {
	return func(s *Shard) { s.handOffStopperProps = props }
}

// WithHandOffStopMessage sets the opaque message forwarded to the
// hand-off stopper template and, ultimately, to each entity being
// drained during hand-off.
func WithHandOffStopMessage(message any) Option {
	return func(s *Shard) { s.handOffStopMessage = message }
}
