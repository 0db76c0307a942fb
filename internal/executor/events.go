package executor

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// EventType represents the type of execution event.
type EventType string

const (
	// EventWorkflowStart indicates a workflow run has started.
	EventWorkflowStart EventType = "workflow_start"
	// EventWorkflowCompleted indicates a workflow run finished successfully.
	EventWorkflowCompleted EventType = "workflow_completed"
	// EventWorkflowFailed indicates a workflow run failed.
	EventWorkflowFailed EventType = "workflow_failed"
	// EventAgentStart indicates an agent has started execution.
	EventAgentStart EventType = "agent_start"
	// EventAgentCompleted indicates an agent completed successfully.
	EventAgentCompleted EventType = "agent_completed"
	// EventAgentFailed indicates an agent failed terminally.
	EventAgentFailed EventType = "agent_failed"
)

// Event is one lifecycle notification from the executor.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the id of the running task.
	TaskID string
	// AgentID is the id of the related agent, if applicable.
	AgentID string
	// AgentName is the display name of the related agent, if applicable.
	AgentName string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error string
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the elapsed time, set on completion and failure events.
	Duration time.Duration
}

// Bus fans execution events out to subscribers. Delivery to each
// subscriber preserves publish order; a subscriber that panics is logged
// and detached, never failing the run.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(Event)

	droppedCount atomic.Uint64
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers a handler for all subsequent events. The returned
// function removes the subscription.
func (b *Bus) Subscribe(handler func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// SubscribeChan registers a buffered channel subscription. Events are
// dropped (and counted) when the buffer stays full, so a slow consumer
// cannot stall execution. The returned stop function removes the
// subscription and closes the channel.
func (b *Bus) SubscribeChan(bufferSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufferSize)
	var closed atomic.Bool

	unsubscribe := b.Subscribe(func(ev Event) {
		if closed.Load() {
			return
		}
		select {
		case ch <- ev:
		default:
			count := b.droppedCount.Add(1)
			if count%10 == 1 { // log every 10th drop to avoid spam
				log.Printf("[executor] event channel full, dropped event (total dropped: %d): type=%s", count, ev.Type)
			}
		}
	})

	return ch, func() {
		unsubscribe()
		if closed.CompareAndSwap(false, true) {
			close(ch)
		}
	}
}

// DroppedCount returns the total number of events dropped by channel
// subscribers.
func (b *Bus) DroppedCount() uint64 {
	return b.droppedCount.Load()
}

// Publish delivers an event to every subscriber in registration order.
// Handlers run outside the bus lock, so a handler may subscribe,
// unsubscribe, or publish without deadlocking the bus.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	// map iteration order is random; deliver in subscription order
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	handlers := make([]func(Event), len(ids))
	for i, id := range ids {
		handlers[i] = b.subs[id]
	}
	b.mu.Unlock()

	for i, handler := range handlers {
		b.deliver(ids[i], handler, ev)
	}
}

// deliver invokes one handler, detaching it if it panics.
func (b *Bus) deliver(id int, handler func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[executor] event subscriber panicked, removing it: %v", r)
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		}
	}()
	handler(ev)
}
