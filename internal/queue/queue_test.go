package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/eventd/internal/ingestion"
)

func testEvent(id string) ingestion.Event {
	return ingestion.Event{
		Topic:     "orders",
		EventID:   id,
		Timestamp: "2026-01-01T00:00:00Z",
		Source:    "svc",
	}
}

func TestBoundedQueue_EnqueueDequeue(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	q := NewBoundedQueue(2)

	require.NoError(t, q.Enqueue(testEvent("evt-1")))
	assert.Equal(t, 1, q.Size())
	assert.False(t, q.IsEmpty())
	assert.False(t, q.IsFull())

	event, ok, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "evt-1", event.EventID)
	assert.True(t, q.IsEmpty())
}

func TestBoundedQueue_EnqueueFullReturnsError(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	q := NewBoundedQueue(1)

	require.NoError(t, q.Enqueue(testEvent("evt-1")))

	err := q.Enqueue(testEvent("evt-2"))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.True(t, q.IsFull())
}

func TestBoundedQueue_EnqueueBatchPreservesOrder(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	q := NewBoundedQueue(10)

	events := []ingestion.Event{testEvent("a"), testEvent("b"), testEvent("c")}

	n, err := q.EnqueueBatch(events)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, want := range []string{"a", "b", "c"} {
		event, ok, derr := q.Dequeue(context.Background())
		require.NoError(t, derr)
		require.True(t, ok)
		assert.Equal(t, want, event.EventID)
	}
}

func TestBoundedQueue_EnqueueBatchStopsAtFull(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	q := NewBoundedQueue(2)

	events := []ingestion.Event{testEvent("a"), testEvent("b"), testEvent("c")}

	n, err := q.EnqueueBatch(events)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, n, "only the events that fit were counted as enqueued")
}

func TestBoundedQueue_DequeueWaitTimesOutWhenEmpty(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	q := NewBoundedQueue(1)

	start := time.Now()

	_, ok, err := q.DequeueWait(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestBoundedQueue_DequeueWaitReturnsWhenAvailable(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	q := NewBoundedQueue(1)
	require.NoError(t, q.Enqueue(testEvent("evt-1")))

	event, ok, err := q.DequeueWait(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "evt-1", event.EventID)
}

func TestBoundedQueue_DequeueRespectsContextCancellation(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	q := NewBoundedQueue(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := q.Dequeue(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBoundedQueue_DefaultCapacity(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	q := NewBoundedQueue(0)
	assert.Equal(t, DefaultCapacity, q.Capacity())
}
