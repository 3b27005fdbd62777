// Package consumer drains the bounded queue, commits events to the dedup
// store, and invokes the downstream sink.
package consumer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/correlator-io/eventd/internal/ingestion"
	"github.com/correlator-io/eventd/internal/queue"
)

// defaultDequeueTimeout bounds how long the worker waits for an event
// before re-checking whether it has been asked to stop.
const defaultDequeueTimeout = time.Second

// Option configures optional Consumer behavior.
type Option func(*Consumer)

// WithDequeueTimeout overrides the default one-second dequeue wait.
func WithDequeueTimeout(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.dequeueTimeout = d
		}
	}
}

// Sink receives events that have already been committed to the dedup
// store. Handle errors are logged and do not cause a re-enqueue; since the
// event is already committed, a publisher retry of it is dropped as a
// duplicate and does not reach the sink again.
type Sink interface {
	Handle(ctx context.Context, event ingestion.Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, event ingestion.Event) error

// Handle calls f.
func (f SinkFunc) Handle(ctx context.Context, event ingestion.Event) error {
	return f(ctx, event)
}

// Consumer is the single long-running worker that owns the consumer side
// of the queue. Start and Stop are both idempotent.
type Consumer struct {
	queue          *queue.BoundedQueue
	store          ingestion.Store
	sink           Sink
	logger         *slog.Logger
	dequeueTimeout time.Duration

	running   atomic.Bool
	processed atomic.Int64
	duplicate atomic.Int64

	stop chan struct{}
	done chan struct{}
	mu   sync.Mutex
}

// New creates a Consumer. It does not start the worker; call Start.
func New(q *queue.BoundedQueue, store ingestion.Store, sink Sink, logger *slog.Logger, opts ...Option) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Consumer{
		queue:          q,
		store:          store,
		sink:           sink,
		logger:         logger,
		dequeueTimeout: defaultDequeueTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start spawns the worker goroutine. Calling Start while already running is
// a no-op.
func (c *Consumer) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		return
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.running.Store(true)

	go c.run()
}

// Stop signals the worker to exit and waits for it. Calling Stop when not
// running is a no-op. Cancellation is honored within roughly the dequeue
// timeout.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.Load() {
		return
	}

	close(c.stop)
	<-c.done
	c.running.Store(false)
}

// Running reports whether the worker is currently active.
func (c *Consumer) Running() bool {
	return c.running.Load()
}

// ProcessedCount returns the number of events successfully committed and
// handed to the sink.
func (c *Consumer) ProcessedCount() int64 {
	return c.processed.Load()
}

// DuplicateCount returns the number of events discarded because
// mark_processed reported them as already committed.
func (c *Consumer) DuplicateCount() int64 {
	return c.duplicate.Load()
}

// QueueDepth forwards the current queue size.
func (c *Consumer) QueueDepth() int {
	return c.queue.Size()
}

// run is the worker loop: {Idle -> Dequeuing -> Committing -> Handling -> Idle},
// exiting to the Stopped state only when stop is closed while idle.
func (c *Consumer) run() {
	defer close(c.done)

	ctx := context.Background()

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		event, ok, err := c.queue.DequeueWait(ctx, c.dequeueTimeout)
		if err != nil {
			continue
		}

		if !ok {
			continue
		}

		c.commitAndHandle(ctx, event)
	}
}

// commitAndHandle implements steps 2-5 of the worker's per-event algorithm.
func (c *Consumer) commitAndHandle(ctx context.Context, event ingestion.Event) {
	inserted, err := c.store.MarkProcessed(ctx, event.Topic, event.EventID, event.Timestamp, event.Source)
	if err != nil {
		c.logger.Error("mark_processed failed, discarding event",
			slog.String("topic", event.Topic),
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)

		return
	}

	if !inserted {
		c.duplicate.Add(1)

		return
	}

	if c.sink != nil {
		if err := c.sink.Handle(ctx, event); err != nil {
			c.logger.Error("sink failed after commit",
				slog.String("topic", event.Topic),
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		}
	}

	c.processed.Add(1)
}
