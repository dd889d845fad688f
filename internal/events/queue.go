package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrQueueRunning = errors.New("queue already running")
	ErrQueueStopped = errors.New("queue not running")
)

// Handler processes one queued event
type Handler func(ctx context.Context, event Event)

// Queue moves slow event consumers off the publisher's goroutine. The bus
// callback only enqueues; a single worker started with Start runs the handler
// in arrival order. Events published while the buffer is full are dropped and
// counted.
type Queue struct {
	events  chan Event
	handle  Handler
	dropped atomic.Int64

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewQueue creates a queue buffering up to size events
func NewQueue(size int, handle Handler) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{
		events: make(chan Event, size),
		handle: handle,
	}
}

// Enqueue adds event without blocking and reports whether it was accepted.
// Events enqueued before Start wait in the buffer.
func (q *Queue) Enqueue(event Event) bool {
	select {
	case q.events <- event:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Subscribe enqueues every event of the given types published on bus and
// returns a function that removes the subscriptions
func (q *Queue) Subscribe(bus *EventBus, types ...EventType) func() {
	unsubs := make([]func(), 0, len(types))
	for _, t := range types {
		unsubs = append(unsubs, bus.Subscribe(t, func(e Event) { q.Enqueue(e) }))
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// Start launches the worker. It stops when ctx is done or Stop is called.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return ErrQueueRunning
	}
	q.running = true
	q.stop = make(chan struct{})
	q.done = make(chan struct{})
	go q.run(ctx, q.stop, q.done)
	return nil
}

// Stop handles what is already buffered, then waits for the worker to exit
func (q *Queue) Stop() error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return ErrQueueStopped
	}
	q.running = false
	close(q.stop)
	done := q.done
	q.mu.Unlock()

	<-done
	return nil
}

// Pending returns the number of buffered events
func (q *Queue) Pending() int {
	return len(q.events)
}

// Dropped returns how many events were rejected because the buffer was full
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

func (q *Queue) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case e := <-q.events:
			q.handle(ctx, e)
		case <-stop:
			q.drain(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (q *Queue) drain(ctx context.Context) {
	for {
		select {
		case e := <-q.events:
			q.handle(ctx, e)
		default:
			return
		}
	}
}
