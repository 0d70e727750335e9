// Package events provides the local in-process event fan-out used by the
// sync subsystem to notify observers about deliveries, failures and
// server-pushed changes.
package events

import (
	"sync"
	"time"
)

// Well-known topics
const (
	TopicWriteSucceeded    = "write.succeeded"
	TopicWriteFailed       = "write.failed"
	TopicQueueDelivered    = "queue.delivered"
	TopicQueueFailed       = "queue.failed"
	TopicQueueDeadLettered = "queue.dead_lettered"
	TopicConnectivity      = "connectivity.changed"

	// TopicChangePrefix is followed by the entity type, e.g. "change.appointments"
	TopicChangePrefix = "change."

	// Wildcard receives every published event
	Wildcard = "*"
)

// Event is one local notification
type Event struct {
	Time    time.Time
	Payload any
	Topic   string
}

// Handler receives published events
type Handler func(Event)

type subscriber struct {
	handler Handler
	id      uint64
}

// Bus is a synchronous publish/subscribe hub.
// Handlers run on the publisher's goroutine in subscription order.
type Bus struct {
	subs   map[string][]subscriber
	now    func() time.Time
	mu     sync.RWMutex
	nextID uint64
}

// NewBus creates an empty event bus
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string][]subscriber),
		now:  time.Now,
	}
}

// Subscribe registers handler for topic and returns a function removing it.
// The returned function may be called more than once.
func (b *Bus) Subscribe(topic string, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscriber{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Bus) remove(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			// Копируем, чтобы не портить срез, который сейчас обходит Publish
			next := make([]subscriber, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			b.subs[topic] = next
			break
		}
	}
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
}

// Publish delivers ev to topic subscribers, then to wildcard subscribers.
// A zero Time is set to the current time.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = b.now()
	}

	b.mu.RLock()
	direct := b.subs[ev.Topic]
	var wildcard []subscriber
	if ev.Topic != Wildcard {
		wildcard = b.subs[Wildcard]
	}
	b.mu.RUnlock()

	for _, s := range direct {
		s.handler(ev)
	}
	for _, s := range wildcard {
		s.handler(ev)
	}
}

// Emit is a shorthand for Publish with topic and payload
func (b *Bus) Emit(topic string, payload any) {
	b.Publish(Event{Topic: topic, Payload: payload})
}
