// Package events provides a bounded fan-out publish/subscribe bus for
// endpoint status changes and sync outcomes. Delivery is best-effort: a
// slow or failing observer never blocks the core path.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Type identifies the kind of event published on the bus
type Type string

const (
	// TypeEndpointStatusChanged is published on each endpoint state transition
	TypeEndpointStatusChanged Type = "endpoint.status_changed"

	// TypeSyncCompleted is published when a sync operation reaches a
	// terminal status
	TypeSyncCompleted Type = "sync.completed"

	// TypeSyncConflict is published when a conflict is detected
	TypeSyncConflict Type = "sync.conflict"
)

// Event is a single notification
type Event struct {
	// Type is the kind of event
	Type Type

	// EndpointID is set for endpoint events
	EndpointID string

	// InstanceID is set for sync events
	InstanceID string

	// OperationID is set for sync events
	OperationID string

	// Status carries the new endpoint status or operation status
	Status string

	// Detail is free-form context (error text, resolution, reason)
	Detail string

	// Timestamp is when the event occurred
	Timestamp time.Time
}

// DefaultBufferSize is the per-subscriber channel buffer
const DefaultBufferSize = 64

// Bus fans events out to subscribers over buffered channels. Publish never
// blocks: events for a subscriber with a full buffer are dropped.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	nextID  uint64
	buffer  int
	dropped atomic.Uint64
}

// NewBus creates a bus with the given per-subscriber buffer size.
// If buffer is 0, DefaultBufferSize is used.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	return &Bus{
		subs:   make(map[uint64]chan Event),
		buffer: buffer,
	}
}

// Subscribe registers an observer. The returned cancel function removes the
// subscription and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
			slog.Debug("dropping event for slow subscriber", "type", evt.Type)
		}
	}
}

// Dropped reports how many events have been dropped for slow subscribers
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close removes all subscriptions and closes their channels
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
