package consumer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/eventd/internal/ingestion"
	"github.com/correlator-io/eventd/internal/queue"
	"github.com/correlator-io/eventd/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testEvent(id string) ingestion.Event {
	return ingestion.Event{
		Topic:     "orders",
		EventID:   id,
		Timestamp: "2026-01-01T00:00:00Z",
		Source:    "svc",
	}
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	require.True(t, condition(), "condition not met within %s", timeout)
}

func TestConsumer_ProcessesEventAndInvokesSink(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	q := queue.NewBoundedQueue(10)
	store := storage.NewInMemoryDedupStore()

	var handled atomic.Int32

	sink := SinkFunc(func(_ context.Context, _ ingestion.Event) error {
		handled.Add(1)

		return nil
	})

	c := New(q, store, sink, discardLogger())
	c.Start()
	defer c.Stop()

	require.NoError(t, q.Enqueue(testEvent("evt-1")))

	waitFor(t, time.Second, func() bool { return c.ProcessedCount() == 1 })
	assert.Equal(t, int32(1), handled.Load())
	assert.Equal(t, int64(0), c.DuplicateCount())
}

func TestConsumer_DuplicateAtCommitIsNotSentToSink(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	q := queue.NewBoundedQueue(10)
	store := storage.NewInMemoryDedupStore()

	_, err := store.MarkProcessed(context.Background(), "orders", "evt-1", "2026-01-01T00:00:00Z", "svc")
	require.NoError(t, err)

	var handled atomic.Int32

	sink := SinkFunc(func(_ context.Context, _ ingestion.Event) error {
		handled.Add(1)

		return nil
	})

	c := New(q, store, sink, discardLogger())
	c.Start()
	defer c.Stop()

	require.NoError(t, q.Enqueue(testEvent("evt-1")))

	waitFor(t, time.Second, func() bool { return c.DuplicateCount() == 1 })
	assert.Equal(t, int32(0), handled.Load())
	assert.Equal(t, int64(0), c.ProcessedCount())
}

func TestConsumer_SinkErrorStillCountsAsProcessed(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	q := queue.NewBoundedQueue(10)
	store := storage.NewInMemoryDedupStore()

	sink := SinkFunc(func(_ context.Context, _ ingestion.Event) error {
		return errors.New("sink unavailable")
	})

	c := New(q, store, sink, discardLogger())
	c.Start()
	defer c.Stop()

	require.NoError(t, q.Enqueue(testEvent("evt-1")))

	waitFor(t, time.Second, func() bool { return c.ProcessedCount() == 1 })
}

func TestConsumer_StartIsIdempotent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	q := queue.NewBoundedQueue(10)
	store := storage.NewInMemoryDedupStore()

	c := New(q, store, nil, discardLogger())
	c.Start()
	c.Start()

	defer c.Stop()

	assert.True(t, c.Running())
}

func TestConsumer_StopIsIdempotentAndWaitsForExit(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	q := queue.NewBoundedQueue(10)
	store := storage.NewInMemoryDedupStore()

	c := New(q, store, nil, discardLogger())
	c.Start()

	c.Stop()
	c.Stop()

	assert.False(t, c.Running())
}

func TestConsumer_QueueDepthReflectsQueue(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	q := queue.NewBoundedQueue(10)
	store := storage.NewInMemoryDedupStore()

	c := New(q, store, nil, discardLogger())

	require.NoError(t, q.Enqueue(testEvent("evt-1")))
	require.NoError(t, q.Enqueue(testEvent("evt-2")))

	assert.Equal(t, 2, c.QueueDepth())
}

func TestConsumer_ConcurrentEnqueueAllProcessedExactlyOnce(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	q := queue.NewBoundedQueue(100)
	store := storage.NewInMemoryDedupStore()

	var mu sync.Mutex

	seen := make(map[string]int)

	sink := SinkFunc(func(_ context.Context, e ingestion.Event) error {
		mu.Lock()
		seen[e.EventID]++
		mu.Unlock()

		return nil
	})

	c := New(q, store, sink, discardLogger())
	c.Start()
	defer c.Stop()

	const n = 20

	for i := 0; i < n; i++ {
		require.NoError(t, q.Enqueue(testEvent(string(rune('a'+i)))))
	}

	waitFor(t, 2*time.Second, func() bool { return c.ProcessedCount() == int64(n) })

	mu.Lock()
	defer mu.Unlock()

	assert.Len(t, seen, n)

	for id, count := range seen {
		assert.Equal(t, 1, count, "event %s handled more than once", id)
	}
}
