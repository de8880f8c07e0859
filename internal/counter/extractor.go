package counter

import (
	"fmt"
	"hash/fnv"

	"github.com/webitel/cluster-sharding/internal/sharding"
)

// Extractor routes Increment/GetValue traffic by EntityId and buckets
// entity ids into a fixed number of shards by FNV hash, the same way a
// real MessageExtractor would before any cluster-membership-aware
// rebalancing gets layered on top (out of scope here, per the
// ShardCoordinator/ShardRegion boundary).
type Extractor struct {
	numShards int
}

// NewExtractor builds an Extractor that spreads entity ids across
// numShards shard ids.
func NewExtractor(numShards int) *Extractor {
	if numShards <= 0 {
		numShards = 1
	}
	return &Extractor{numShards: numShards}
}

// ExtractEntityId implements sharding.MessageExtractor.
func (e *Extractor) ExtractEntityId(message any) (sharding.EntityId, any, bool) {
	switch m := message.(type) {
	case Increment:
		return m.EntityId, m, true
	case GetValue:
		return m.EntityId, m, true
	default:
		return "", nil, false
	}
}

// ExtractShardId implements sharding.MessageExtractor.
func (e *Extractor) ExtractShardId(message any) (sharding.ShardId, bool) {
	id, _, ok := e.ExtractEntityId(message)
	if !ok || id == "" {
		return "", false
	}
	return e.shardIdFor(id), true
}

func (e *Extractor) shardIdFor(id sharding.EntityId) sharding.ShardId {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return fmt.Sprintf("shard-%02d", h.Sum32()%uint32(e.numShards))
}
