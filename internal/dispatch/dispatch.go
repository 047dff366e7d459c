// Package dispatch routes inbound realtime events to registered
// listeners by event name.
package dispatch

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Event is one inbound occurrence handed to listeners.
type Event struct {
	Name string
	Data []byte
}

// Handler consumes one event.
type Handler func(Event)

// Handle identifies a single registration so the same function can be
// registered twice and removed independently.
type Handle struct {
	event string
	id    string
}

type entry struct {
	id string
	fn Handler
}

// Dispatcher maps event names to ordered handler lists. Dispatch is
// synchronous and fail-soft: a panicking handler is logged and the
// remaining handlers still run.
type Dispatcher struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]entry
}

// New creates an empty dispatcher.
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		logger:   logger,
		handlers: make(map[string][]entry),
	}
}

// On registers a handler for an event name and returns its handle.
// Handlers run in registration order.
func (d *Dispatcher) On(event string, fn Handler) Handle {
	h := Handle{event: event, id: uuid.NewString()}

	d.mu.Lock()
	d.handlers[event] = append(d.handlers[event], entry{id: h.id, fn: fn})
	d.mu.Unlock()

	return h
}

// Off removes a registration. Removing an unknown or already-removed
// handle is a no-op.
func (d *Dispatcher) Off(h Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.handlers[h.event]
	for i, e := range list {
		if e.id == h.id {
			d.handlers[h.event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(d.handlers[h.event]) == 0 {
		delete(d.handlers, h.event)
	}
}

// Dispatch invokes all handlers for the event, in registration order, on
// the caller's goroutine.
func (d *Dispatcher) Dispatch(ev Event) {
	d.mu.RLock()
	list := make([]entry, len(d.handlers[ev.Name]))
	copy(list, d.handlers[ev.Name])
	d.mu.RUnlock()

	for _, e := range list {
		d.invoke(e, ev)
	}
}

func (d *Dispatcher) invoke(e entry, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				"event", ev.Name,
				"panic", r,
			)
		}
	}()

	e.fn(ev)
}

// Len reports the number of handlers registered for an event.
func (d *Dispatcher) Len(event string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[event])
}
