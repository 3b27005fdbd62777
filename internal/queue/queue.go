// Package queue provides a bounded, FIFO, single-producer event queue
// sitting between the admission path and the background consumer.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/correlator-io/eventd/internal/ingestion"
)

// DefaultCapacity is the queue capacity used when none is configured.
const DefaultCapacity = 10000

// ErrQueueFull is returned by Enqueue/EnqueueBatch when the queue has no
// room for the event and the caller must treat it as backpressure rather
// than retry internally.
var ErrQueueFull = errors.New("queue is full")

// BoundedQueue is a fixed-capacity FIFO queue of ingestion.Event, backed by
// a buffered channel. It assumes a single producer: EnqueueBatch is not
// atomic across concurrent producers, only ordered within one caller's
// sequential calls.
type BoundedQueue struct {
	items chan ingestion.Event
}

// NewBoundedQueue creates a queue with the given capacity. A non-positive
// capacity falls back to DefaultCapacity.
func NewBoundedQueue(capacity int) *BoundedQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &BoundedQueue{
		items: make(chan ingestion.Event, capacity),
	}
}

// Enqueue adds a single event without blocking. Returns ErrQueueFull if the
// queue has no available capacity.
func (q *BoundedQueue) Enqueue(event ingestion.Event) error {
	select {
	case q.items <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// EnqueueBatch adds events one at a time, in order, stopping at the first
// one that does not fit. It returns the number of events actually enqueued
// and ErrQueueFull if the batch did not fit in full. Partial admission is
// intentional: events already enqueued are not rolled back.
func (q *BoundedQueue) EnqueueBatch(events []ingestion.Event) (int, error) {
	for i, event := range events {
		if err := q.Enqueue(event); err != nil {
			return i, err
		}
	}

	return len(events), nil
}

// Dequeue blocks until an event is available, ctx is cancelled, or the
// queue is closed, whichever happens first.
func (q *BoundedQueue) Dequeue(ctx context.Context) (ingestion.Event, bool, error) {
	select {
	case event, ok := <-q.items:
		if !ok {
			return ingestion.Event{}, false, nil
		}

		return event, true, nil
	case <-ctx.Done():
		return ingestion.Event{}, false, ctx.Err()
	}
}

// DequeueWait blocks for up to timeout waiting for an event. Returns
// ok=false without error when the wait elapses with nothing to dequeue.
func (q *BoundedQueue) DequeueWait(ctx context.Context, timeout time.Duration) (ingestion.Event, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case event, ok := <-q.items:
		if !ok {
			return ingestion.Event{}, false, nil
		}

		return event, true, nil
	case <-timer.C:
		return ingestion.Event{}, false, nil
	case <-ctx.Done():
		return ingestion.Event{}, false, ctx.Err()
	}
}

// Size returns the number of events currently queued.
func (q *BoundedQueue) Size() int {
	return len(q.items)
}

// IsEmpty reports whether the queue currently holds no events.
func (q *BoundedQueue) IsEmpty() bool {
	return q.Size() == 0
}

// IsFull reports whether the queue is at capacity.
func (q *BoundedQueue) IsFull() bool {
	return len(q.items) == cap(q.items)
}

// Capacity returns the queue's maximum size.
func (q *BoundedQueue) Capacity() int {
	return cap(q.items)
}

// Close closes the underlying channel. Callers must stop calling Enqueue
// before calling Close; a send on a closed channel panics. Safe to call
// once.
func (q *BoundedQueue) Close() {
	close(q.items)
}
