// Package rooms tracks the set of chat rooms this client wants to be
// subscribed to. The set is the source of truth for replay: after every
// reconnect the connection manager re-sends a join for each tracked
// room, so rooms left while offline are never resurrected.
package rooms

import "sync"

// Registry is an idempotent set of room ids.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]struct{})}
}

// Add tracks a room. Reports whether the room was newly added.
func (r *Registry) Add(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[roomID]; ok {
		return false
	}
	r.rooms[roomID] = struct{}{}
	return true
}

// Remove stops tracking a room. Reports whether the room was present.
func (r *Registry) Remove(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[roomID]; !ok {
		return false
	}
	delete(r.rooms, roomID)
	return true
}

// Contains reports whether a room is tracked.
func (r *Registry) Contains(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}

// Snapshot returns the tracked rooms in no particular order.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		out = append(out, id)
	}
	return out
}

// Len reports the number of tracked rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Clear drops all tracked rooms. Called on explicit disconnect; network
// loss keeps the set so it can be replayed.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = make(map[string]struct{})
}
