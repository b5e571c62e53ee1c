package lifecycle

import (
	"sync"
	"time"
)

// EventType classifies a lifecycle event
type EventType string

const (
	EventTransition EventType = "transition"
	EventRecreated  EventType = "recreated"
	EventDeleted    EventType = "deleted"
)

// Event reports an instance change to subscribers
type Event struct {
	Type       EventType `json:"type"`
	AccountID  string    `json:"account_id"`
	InstanceID string    `json:"instance_id"`
	From       Status    `json:"from,omitempty"`
	To         Status    `json:"to,omitempty"`
	At         time.Time `json:"at"`
}

// EventBus fans lifecycle events out to subscribers. A subscriber whose
// buffer is full misses events instead of stalling the orchestrator.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	buffer int
}

// NewEventBus creates a bus with the given per-subscriber buffer
func NewEventBus(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &EventBus{subs: make(map[int]chan Event), buffer: buffer}
}

// Subscribe returns an event channel and a function that unsubscribes
// and closes it
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber with room for it
func (b *EventBus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
