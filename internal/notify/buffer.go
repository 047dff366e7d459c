// Package notify keeps the last notifications pushed over the realtime
// channel: deduplicated by id, bounded, newest first, with read state.
package notify

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pokojowo/realtime/internal/wire"
)

// DefaultCapacity matches what the notification dropdowns display.
const DefaultCapacity = 20

// Item is one stored notification.
type Item struct {
	ID        string
	Kind      string
	Payload   json.RawMessage
	CreatedAt time.Time
	Read      bool
}

// Buffer is a bounded, deduplicating notification store. The connection
// manager is the only writer; any goroutine may read.
type Buffer struct {
	capacity int

	mu    sync.RWMutex
	items []Item // newest first
	index map[string]struct{}
}

// NewBuffer creates a buffer holding at most capacity items; capacity
// <= 0 falls back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Buffer{
		capacity: capacity,
		index:    make(map[string]struct{}),
	}
}

// Add ingests a notification event. A duplicate id is ignored entirely:
// no reorder, no overwrite. Once full, the oldest item is evicted.
// Reports whether the item was stored.
func (b *Buffer) Add(n wire.Notification, payload json.RawMessage, receivedAt time.Time) bool {
	id := NotificationID(n)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, dup := b.index[id]; dup {
		return false
	}

	item := Item{
		ID:        id,
		Kind:      n.Type,
		Payload:   payload,
		CreatedAt: receivedAt,
	}

	b.items = append([]Item{item}, b.items...)
	b.index[id] = struct{}{}

	for len(b.items) > b.capacity {
		evicted := b.items[len(b.items)-1]
		b.items = b.items[:len(b.items)-1]
		delete(b.index, evicted.ID)
	}

	return true
}

// NotificationID derives the dedup key for a notification. The server
// keys message notifications by the message they announce; payloads
// without one get a local id, which never collides and therefore never
// suppresses anything.
func NotificationID(n wire.Notification) string {
	if n.MessageID != "" {
		return n.MessageID
	}
	return uuid.NewString()
}

// Items returns a copy, newest first.
func (b *Buffer) Items() []Item {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Item, len(b.items))
	copy(out, b.items)
	return out
}

// Len reports the number of stored notifications.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// MarkRead marks one notification read. Unknown ids are a no-op.
func (b *Buffer) MarkRead(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.items {
		if b.items[i].ID == id {
			b.items[i].Read = true
			return
		}
	}
}

// MarkAllRead marks every stored notification read.
func (b *Buffer) MarkAllRead() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.items {
		b.items[i].Read = true
	}
}

// UnreadCount reports how many stored notifications are unread.
func (b *Buffer) UnreadCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for i := range b.items {
		if !b.items[i].Read {
			n++
		}
	}
	return n
}

// Clear drops everything.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = nil
	b.index = make(map[string]struct{})
}
