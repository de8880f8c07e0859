package journal

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUSnapshotCache fronts a slower SnapshotStore with an in-memory LRU,
// cache-aside: SaveSnapshot writes through to both, LoadSnapshot checks
// the cache before falling back to the backing store and repopulating it.
type LRUSnapshotCache struct {
	backing SnapshotStore
	cache   *lru.Cache[string, *State]
}

// NewLRUSnapshotCache wraps backing with an LRU of the given capacity,
// keyed by persistence id.
func NewLRUSnapshotCache(backing SnapshotStore, capacity int) (*LRUSnapshotCache, error) {
	cache, err := lru.New[string, *State](capacity)
	if err != nil {
		return nil, err
	}
	return &LRUSnapshotCache{backing: backing, cache: cache}, nil
}

func (c *LRUSnapshotCache) SaveSnapshot(ctx context.Context, persistenceId string, state *State) error {
	if err := c.backing.SaveSnapshot(ctx, persistenceId, state); err != nil {
		return err
	}
	c.cache.Add(persistenceId, state.Copy())
	return nil
}

func (c *LRUSnapshotCache) LoadSnapshot(ctx context.Context, persistenceId string) (*State, bool, error) {
	if cached, ok := c.cache.Get(persistenceId); ok {
		return cached.Copy(), true, nil
	}

	state, ok, err := c.backing.LoadSnapshot(ctx, persistenceId)
	if err != nil || !ok {
		return state, ok, err
	}
	c.cache.Add(persistenceId, state.Copy())
	return state, true, nil
}
