package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/correlator-io/eventd/internal/consumer"
	"github.com/correlator-io/eventd/internal/ingestion"
	"github.com/correlator-io/eventd/internal/queue"
)

// queueHighWaterRatio is the fraction of queue capacity above which Health
// reports the service as unhealthy, even with the consumer running.
const queueHighWaterRatio = 0.9

// PublishResult is the per-request outcome returned by Publish.
type PublishResult struct {
	Received  int    `json:"received"`
	Accepted  int    `json:"accepted"`
	Duplicate int    `json:"duplicates"`
	Message   string `json:"message"`
}

// Stats is the process-wide counters snapshot returned by Stats.
type Stats struct {
	Received         int64    `json:"received"`
	UniqueProcessed  int64    `json:"unique_processed"`
	DuplicateDropped int64    `json:"duplicate_dropped"`
	Topics           []string `json:"topics"`
	UptimeSeconds    float64  `json:"uptime_seconds"`
	UptimeHuman      string   `json:"uptime_human"`
}

// Health is the liveness snapshot returned by HealthStatus.
type Health struct {
	Status          string `json:"status"`
	ConsumerRunning bool   `json:"consumer_running"`
	QueueSize       int    `json:"queue_size"`
}

// Service is the ingestion service façade: it owns admission (the
// pre-enqueue duplicate check and enqueue), the background consumer, and
// the read paths exposed over HTTP.
type Service struct {
	store     ingestion.Store
	queue     *queue.BoundedQueue
	consumer  *consumer.Consumer
	validator *ingestion.Validator
	logger    *slog.Logger

	startTime      time.Time
	received       atomic.Int64
	trustedSources map[string]struct{}
}

// SetTrustedSources configures the optional source allowlist loaded from
// static configuration. An empty list disables the check entirely (the
// default): every source is accepted, and Publish only logs a warning for
// sources outside the configured list instead of rejecting them.
func (s *Service) SetTrustedSources(sources []string) {
	if len(sources) == 0 {
		s.trustedSources = nil

		return
	}

	set := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		set[src] = struct{}{}
	}

	s.trustedSources = set
}

// NewService wires a Store, a BoundedQueue, and a Consumer into the
// façade. The consumer is started immediately.
func NewService(store ingestion.Store, q *queue.BoundedQueue, c *consumer.Consumer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	svc := &Service{
		store:     store,
		queue:     q,
		consumer:  c,
		validator: ingestion.NewValidator(),
		logger:    logger,
		startTime: time.Now(),
	}

	svc.consumer.Start()

	return svc
}

// Publish admits a batch of events: each is checked against the dedup
// store as an optimization before being enqueued for the consumer to
// commit authoritatively. Validation errors are the caller's
// responsibility to check before calling Publish (see ingestion.Validator)
// — Publish itself assumes a validated batch.
func (s *Service) Publish(ctx context.Context, events []ingestion.Event) (PublishResult, error) {
	result := PublishResult{Received: len(events)}

	s.received.Add(int64(len(events)))

	for _, event := range events {
		if s.trustedSources != nil {
			if _, trusted := s.trustedSources[event.Source]; !trusted {
				s.logger.Warn("event from untrusted source",
					slog.String("topic", event.Topic),
					slog.String("source", event.Source),
				)
			}
		}

		duplicate, err := s.store.IsDuplicate(ctx, event.Topic, event.EventID)
		if err != nil {
			return result, fmt.Errorf("%w: %w", ingestion.ErrStoreUnavailable, err)
		}

		if duplicate {
			result.Duplicate++

			continue
		}

		if err := s.queue.Enqueue(event); err != nil {
			s.logger.Warn("queue full, dropping event",
				slog.String("topic", event.Topic),
				slog.String("event_id", event.EventID),
			)

			continue
		}

		result.Accepted++
	}

	result.Message = fmt.Sprintf(
		"received %d, accepted %d, duplicates %d",
		result.Received, result.Accepted, result.Duplicate,
	)

	return result, nil
}

// QueryEvents forwards to the store's topic query, bounding limit to
// [MinQueryLimit, MaxQueryLimit] with DefaultQueryLimit when limit <= 0.
func (s *Service) QueryEvents(ctx context.Context, topic string, limit int) ([]ingestion.TopicEvent, error) {
	switch {
	case limit <= 0:
		limit = ingestion.DefaultQueryLimit
	case limit < ingestion.MinQueryLimit:
		limit = ingestion.MinQueryLimit
	case limit > ingestion.MaxQueryLimit:
		limit = ingestion.MaxQueryLimit
	}

	events, err := s.store.GetEventsByTopic(ctx, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ingestion.ErrStoreUnavailable, err)
	}

	return events, nil
}

// Stats returns the process-wide counters. UniqueProcessed is read from
// the store, not the consumer's in-process counter, since the latter
// resets on restart and drifts after CleanupOldEvents: the store's record
// count is the only value that survives both. DuplicateDropped reflects
// only the consumer's at-commit duplicates; publish-time duplicates are
// visible solely in each call's PublishResult.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	topics, err := s.store.GetTopics(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %w", ingestion.ErrStoreUnavailable, err)
	}

	processed, err := s.store.GetProcessedCount(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %w", ingestion.ErrStoreUnavailable, err)
	}

	uptime := time.Since(s.startTime)

	return Stats{
		Received:         s.received.Load(),
		UniqueProcessed:  processed,
		DuplicateDropped: s.consumer.DuplicateCount(),
		Topics:           topics,
		UptimeSeconds:    uptime.Seconds(),
		UptimeHuman:      uptime.Round(time.Second).String(),
	}, nil
}

// HealthStatus reports "healthy" only when the consumer is running and the
// queue is below a high-water mark.
func (s *Service) HealthStatus() Health {
	depth := s.queue.Size()
	running := s.consumer.Running()

	status := "healthy"
	if !running || float64(depth) >= float64(s.queue.Capacity())*queueHighWaterRatio {
		status = "unhealthy"
	}

	return Health{
		Status:          status,
		ConsumerRunning: running,
		QueueSize:       depth,
	}
}

// Close stops the consumer and closes the underlying store. Safe to call
// once.
func (s *Service) Close() error {
	s.consumer.Stop()

	return s.store.Close()
}
