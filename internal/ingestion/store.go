package ingestion

import (
	"context"
	"errors"
)

var (
	// ErrStoreUnavailable wraps a transient storage failure. Callers on the
	// consumer path log and drop the event (the upstream retry is the
	// recovery path); callers on the admission path surface a 500.
	ErrStoreUnavailable = errors.New("dedup store unavailable")

	// ErrInitializeFailed wraps a fatal failure during Initialize. The
	// service must not start if this is returned.
	ErrInitializeFailed = errors.New("dedup store failed to initialize")
)

// TopicEvent is one row returned by GetEventsByTopic.
type TopicEvent struct {
	EventID     string
	Timestamp   string
	Source      string
	ProcessedAt string
}

// Store is the durable, concurrency-safe set of (topic, event_id) keys with
// associated metadata. MarkProcessed is the only mutation and is the sole
// authoritative dedup decision; IsDuplicate is an optimization only.
//
// Implementations must distinguish a uniqueness-constraint conflict (not an
// error: MarkProcessed returns false) from every other storage failure
// (returned as an error; the api.Service façade wraps such errors in
// ErrStoreUnavailable).
type Store interface {
	// Initialize creates schema and indices if absent. Idempotent. A
	// failure here is fatal; the service must not start.
	Initialize(ctx context.Context) error

	// IsDuplicate reports whether a ProcessedRecord with this composite key
	// exists at the moment of the call. Not a reservation: the result may
	// be stale by the time MarkProcessed is called.
	IsDuplicate(ctx context.Context, topic, eventID string) (bool, error)

	// MarkProcessed atomically inserts a new ProcessedRecord. Returns true
	// on insert, false iff a record with this composite key already
	// existed. Never returns an error for the uniqueness conflict itself.
	MarkProcessed(ctx context.Context, topic, eventID, timestamp, source string) (bool, error)

	// GetProcessedCount returns the total number of ProcessedRecords.
	GetProcessedCount(ctx context.Context) (int64, error)

	// GetTopics returns the distinct topics currently represented, sorted.
	GetTopics(ctx context.Context) ([]string, error)

	// GetEventsByTopic returns records for topic ordered by ProcessedAt
	// descending (most recent first), capped at limit.
	GetEventsByTopic(ctx context.Context, topic string, limit int) ([]TopicEvent, error)

	// GetCountByTopic returns the number of records with the given topic.
	GetCountByTopic(ctx context.Context, topic string) (int64, error)

	// CleanupOldEvents removes records whose ProcessedAt is older than
	// now - maxAgeDays and returns the number of rows deleted.
	CleanupOldEvents(ctx context.Context, maxAgeDays int) (int64, error)

	// HealthCheck reports whether the store is reachable and serving.
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the store. Safe to call once;
	// implementations should tolerate repeated calls.
	Close() error
}
