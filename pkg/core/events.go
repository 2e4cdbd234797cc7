package core

import "sync"

// EventKind identifies a cross-flow signal published on the event bus.
type EventKind string

const (
	// EventMemorySaved fires after a save-info flow persists a memory.
	EventMemorySaved EventKind = "memory_saved"

	// EventCalendarDraftReady fires when a calendar flow has produced a
	// draft event awaiting user confirmation.
	EventCalendarDraftReady EventKind = "calendar_draft_ready"

	// EventMemoriesRefreshed fires after a full list/fetch refresh.
	EventMemoriesRefreshed EventKind = "memories_refreshed"
)

// Event is a signal published on the bus. Payload content depends on Kind.
type Event struct {
	Kind    EventKind
	Payload interface{}
}

// Bus is a small fan-out event bus for cross-flow signals.
//
// UI-facing state lives behind the bus rather than inside the pipeline
// services; subscribers receive events on buffered channels, and a slow
// subscriber drops events rather than blocking a flow.
type Bus struct {
	mu   sync.Mutex
	subs []chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new subscriber and returns its channel.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 16)
	b.subs = append(b.subs, ch)
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Passing a
// channel that is not subscribed is a no-op.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Publish delivers an event to every subscriber without blocking.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
