package realtime

import (
	"encoding/json"
	"sync"
)

// Wildcard subscribes a handler to every emission, modeled and unmodeled
// alike. The upstream event vocabulary grows over time; wildcard consumers
// see new event types without a client upgrade.
const Wildcard = "*"

// Client lifecycle signal types, emitted alongside the wire vocabulary.
const (
	TypeConnected           = "connected"
	TypeDisconnected        = "disconnected"
	TypeAuthenticationError = "authentication_error"

	// TypeError doubles as the wire "error" event type: upstream
	// application errors are forwarded under the same name.
	TypeError = "error"
)

// Event is one demultiplexed occurrence: an inbound wire event (Data holds
// the raw frame) or a client lifecycle signal (Data is nil).
type Event struct {
	Type string
	Data json.RawMessage
	Err  error
}

// EventHandler observes events. Handlers run synchronously on the
// transport's delivery goroutine, in frame-arrival order; slow handlers
// stall inbound processing.
type EventHandler func(Event)

// Subscription identifies one registered handler.
type Subscription struct {
	emitter *emitter
	typ     string
	id      uint64
}

// Off removes the handler. Safe to call more than once.
func (s *Subscription) Off() {
	if s.emitter != nil {
		s.emitter.off(s.typ, s.id)
	}
}

type handlerEntry struct {
	id uint64
	fn EventHandler
}

// emitter is a registry keyed by event type, plus a separate wildcard list.
type emitter struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string][]handlerEntry
}

func newEmitter() *emitter {
	return &emitter{subs: map[string][]handlerEntry{}}
}

func (e *emitter) on(typ string, fn EventHandler) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.subs[typ] = append(e.subs[typ], handlerEntry{id: e.nextID, fn: fn})
	return &Subscription{emitter: e, typ: typ, id: e.nextID}
}

func (e *emitter) off(typ string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entries := e.subs[typ]
	for i, h := range entries {
		if h.id == id {
			e.subs[typ] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// emit delivers to the type's handlers, then to wildcard handlers. Handler
// lists are snapshotted so handlers may subscribe or unsubscribe freely.
func (e *emitter) emit(evt Event) {
	e.mu.Lock()
	typed := make([]handlerEntry, len(e.subs[evt.Type]))
	copy(typed, e.subs[evt.Type])
	wild := make([]handlerEntry, len(e.subs[Wildcard]))
	copy(wild, e.subs[Wildcard])
	e.mu.Unlock()

	for _, h := range typed {
		h.fn(evt)
	}
	for _, h := range wild {
		h.fn(evt)
	}
}
