package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/correlator-io/eventd/internal/ingestion"
)

// Compile-time interface assertion.
var _ ingestion.Store = (*InMemoryDedupStore)(nil)

// record is the internal representation of a ProcessedRecord.
type record struct {
	timestamp   string
	source      string
	processedAt time.Time
}

// InMemoryDedupStore provides a thread-safe, map-backed implementation of
// ingestion.Store. Used by unit tests and by cmd/simulator's memory-backed
// dry-run mode; it carries no durability across process restarts.
type InMemoryDedupStore struct {
	// records maps topic -> event_id -> record.
	records map[string]map[string]record
	mutex   sync.RWMutex
}

// NewInMemoryDedupStore creates a new empty in-memory dedup store.
func NewInMemoryDedupStore() *InMemoryDedupStore {
	return &InMemoryDedupStore{
		records: make(map[string]map[string]record),
	}
}

// Initialize is a no-op: there is no schema to create.
func (s *InMemoryDedupStore) Initialize(_ context.Context) error {
	return nil
}

// IsDuplicate reports whether (topic, event_id) is already recorded.
func (s *InMemoryDedupStore) IsDuplicate(_ context.Context, topic, eventID string) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	topicRecords, ok := s.records[topic]
	if !ok {
		return false, nil
	}

	_, exists := topicRecords[eventID]

	return exists, nil
}

// MarkProcessed atomically inserts a record for (topic, event_id) if absent.
// The write lock around the existence check and insert is what makes this
// atomic — the same role the uniqueness constraint plays in
// PostgresDedupStore.
func (s *InMemoryDedupStore) MarkProcessed(
	_ context.Context,
	topic, eventID, timestamp, source string,
) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	topicRecords, ok := s.records[topic]
	if !ok {
		topicRecords = make(map[string]record)
		s.records[topic] = topicRecords
	}

	if _, exists := topicRecords[eventID]; exists {
		return false, nil
	}

	topicRecords[eventID] = record{
		timestamp:   timestamp,
		source:      source,
		processedAt: time.Now().UTC(),
	}

	return true, nil
}

// GetProcessedCount returns the total number of records across all topics.
func (s *InMemoryDedupStore) GetProcessedCount(_ context.Context) (int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var count int64

	for _, topicRecords := range s.records {
		count += int64(len(topicRecords))
	}

	return count, nil
}

// GetTopics returns the distinct topics currently represented, sorted.
func (s *InMemoryDedupStore) GetTopics(_ context.Context) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	topics := make([]string, 0, len(s.records))
	for topic := range s.records {
		topics = append(topics, topic)
	}

	sort.Strings(topics)

	return topics, nil
}

// GetEventsByTopic returns events for topic ordered by ProcessedAt
// descending, capped at limit when limit > 0.
func (s *InMemoryDedupStore) GetEventsByTopic(
	_ context.Context,
	topic string,
	limit int,
) ([]ingestion.TopicEvent, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	topicRecords, ok := s.records[topic]
	if !ok {
		return []ingestion.TopicEvent{}, nil
	}

	events := make([]ingestion.TopicEvent, 0, len(topicRecords))

	for eventID, rec := range topicRecords {
		events = append(events, ingestion.TopicEvent{
			EventID:     eventID,
			Timestamp:   rec.timestamp,
			Source:      rec.source,
			ProcessedAt: rec.processedAt.Format(time.RFC3339Nano),
		})
	}

	sort.Slice(events, func(i, j int) bool {
		ti, _ := time.Parse(time.RFC3339Nano, events[i].ProcessedAt)
		tj, _ := time.Parse(time.RFC3339Nano, events[j].ProcessedAt)

		return ti.After(tj)
	})

	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}

	return events, nil
}

// GetCountByTopic returns the number of records for a given topic.
func (s *InMemoryDedupStore) GetCountByTopic(_ context.Context, topic string) (int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return int64(len(s.records[topic])), nil
}

// CleanupOldEvents removes records whose ProcessedAt is older than
// now - maxAgeDays and returns the number of rows deleted.
func (s *InMemoryDedupStore) CleanupOldEvents(_ context.Context, maxAgeDays int) (int64, error) {
	if maxAgeDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	var deleted int64

	for topic, topicRecords := range s.records {
		for eventID, rec := range topicRecords {
			if rec.processedAt.Before(cutoff) {
				delete(topicRecords, eventID)

				deleted++
			}
		}

		if len(topicRecords) == 0 {
			delete(s.records, topic)
		}
	}

	return deleted, nil
}

// HealthCheck always succeeds: there is no external dependency to probe.
func (s *InMemoryDedupStore) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (s *InMemoryDedupStore) Close() error {
	return nil
}
