package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	// Store mutations
	EventPoolsAdded      EventType = "POOLS_ADDED"
	EventSweepAdded      EventType = "SWEEP_ADDED"
	EventPoolSwept       EventType = "POOL_SWEPT"
	EventStructuresAdded EventType = "STRUCTURES_ADDED"
	EventSignalAdded     EventType = "SIGNAL_ADDED"
	EventCandlesUpdated  EventType = "CANDLES_UPDATED"
	EventCleanup         EventType = "CLEANUP"
	EventImported        EventType = "IMPORTED"

	// Engine and monitor lifecycle
	EventAnalysisCompleted EventType = "ANALYSIS_COMPLETED"
	EventMonitorStarted    EventType = "MONITOR_STARTED"
	EventMonitorStopped    EventType = "MONITOR_STOPPED"
	EventError             EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Symbol    string                 `json:"symbol,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

type subscription struct {
	id int
	fn Subscriber
}

// EventBus manages event publishing and subscriptions. Delivery is synchronous:
// Publish returns only after every subscriber has run, in subscription order.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]subscription
	allSubs     []subscription // Subscribers to all events
	nextID      int
	now         func() time.Time
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]subscription),
		now:         time.Now,
	}
}

// SetClock replaces the source of event timestamps
func (eb *EventBus) SetClock(now func() time.Time) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.now = now
}

// Subscribe registers a subscriber for a specific event type and returns a
// function that removes it again.
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	id := eb.nextID
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscription{id: id, fn: subscriber})

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		eb.subscribers[eventType] = without(eb.subscribers[eventType], id)
	}
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	id := eb.nextID
	eb.allSubs = append(eb.allSubs, subscription{id: id, fn: subscriber})

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		eb.allSubs = without(eb.allSubs, id)
	}
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	if event.Timestamp.IsZero() {
		event.Timestamp = eb.now()
	}
	// snapshot so subscribers may (un)subscribe while being notified
	subs := make([]subscription, 0, len(eb.subscribers[event.Type])+len(eb.allSubs))
	subs = append(subs, eb.subscribers[event.Type]...)
	subs = append(subs, eb.allSubs...)
	eb.mu.RUnlock()

	for _, sub := range subs {
		sub.fn(event)
	}
}

// SubscriberCount returns the number of registered subscribers
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	n := len(eb.allSubs)
	for _, subs := range eb.subscribers {
		n += len(subs)
	}
	return n
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(symbol, source string, err error) {
	eb.Publish(Event{
		Type:   EventError,
		Symbol: symbol,
		Data: map[string]interface{}{
			"source": source,
			"error":  err.Error(),
		},
	})
}

func without(subs []subscription, id int) []subscription {
	out := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
