// Package counter is a minimal demo entity type: a per-id counter that
// increments and reports its value, remembered and restarted by a
// PersistentShard the way any real entity type would be. It exists to
// give the cmd binary and the host/adminapi packages something concrete
// to route, persist, and inspect end-to-end.
package counter

// Increment adds Delta to the counter identified by EntityId and replies
// with the resulting Value.
type Increment struct {
	EntityId string
	Delta    int
}

// GetValue requests the current value of the counter identified by
// EntityId without changing it.
type GetValue struct {
	EntityId string
}

// Value is the reply to Increment and GetValue.
type Value struct {
	EntityId string
	Value    int
}

// passivateIdle is sent by an entity to itself when its idle timer fires.
// It is never sent by anything outside this package.
type passivateIdle struct{}
