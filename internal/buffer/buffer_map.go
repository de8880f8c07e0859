package buffer

// emptyBuffer is returned by GetOrEmpty for an id with no map entry. It is
// never stored in the map and mutating it has no observable effect on the
// map's state.
var emptyBuffer = New()

// Map is a mapping from entity id to MessageBuffer. The presence of a key
// — even one whose buffer is empty — is the semantic flag that marks that
// id as "currently in a buffering window": callers elsewhere treat
// Contains(id) as "do not route to id directly".
type Map[Id comparable] struct {
	buffers map[Id]*MessageBuffer
}

// NewMap returns an empty Map.
func NewMap[Id comparable]() *Map[Id] {
	return &Map[Id]{buffers: make(map[Id]*MessageBuffer)}
}

// Contains reports whether id is currently in a buffering window.
func (m *Map[Id]) Contains(id Id) bool {
	_, ok := m.buffers[id]
	return ok
}

// Add opens a buffering window for id without enqueuing anything. It is a
// no-op if the window is already open.
func (m *Map[Id]) Add(id Id) {
	if _, ok := m.buffers[id]; !ok {
		m.buffers[id] = New()
	}
}

// Append lazily opens the buffering window for id if needed, then appends
// env to it. After Append, Contains(id) is true and the buffer is
// non-empty.
func (m *Map[Id]) Append(id Id, env Envelope) {
	b, ok := m.buffers[id]
	if !ok {
		b = New()
		m.buffers[id] = b
	}
	b.Append(env)
}

// Remove closes the buffering window for id. Any unread envelopes are
// discarded. It is a no-op if the window was not open.
func (m *Map[Id]) Remove(id Id) {
	delete(m.buffers, id)
}

// GetOrEmpty returns the buffer for id if a window is open, or a shared
// transient empty buffer otherwise. Callers use this to inspect emptiness
// without opening a window as a side effect; they must not mutate the
// returned buffer when Contains(id) was false.
func (m *Map[Id]) GetOrEmpty(id Id) *MessageBuffer {
	if b, ok := m.buffers[id]; ok {
		return b
	}
	return emptyBuffer
}

// TotalSize returns the sum of every open buffer's length, used to enforce
// the per-Shard cap on total in-flight buffered messages.
func (m *Map[Id]) TotalSize() int {
	total := 0
	for _, b := range m.buffers {
		total += b.Len()
	}
	return total
}

// Ids returns the set of currently-open buffering windows, in unspecified
// order.
func (m *Map[Id]) Ids() []Id {
	ids := make([]Id, 0, len(m.buffers))
	for id := range m.buffers {
		ids = append(ids, id)
	}
	return ids
}
