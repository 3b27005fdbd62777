package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/correlator-io/eventd/internal/config"
	"github.com/correlator-io/eventd/internal/ingestion"
)

// Cleanup configuration constants.
const (
	// cleanupQueryTimeout is the maximum time allowed for a single cleanup query execution.
	cleanupQueryTimeout = 30 * time.Second
	// shutdownTimeout is the maximum time to wait for the cleanup goroutine to stop during Close().
	shutdownTimeout = 5 * time.Second
	// cleanupBatchSize is the maximum number of rows to delete per batch to avoid long-running locks.
	cleanupBatchSize = 10000
	// batchSleepDuration is the sleep time between batches to avoid overwhelming the database.
	batchSleepDuration = 100 * time.Millisecond
	// uniqueViolationCode is the PostgreSQL error code for a unique constraint violation.
	uniqueViolationCode = "23505"
	// defaultCleanupInterval is used when NewPostgresDedupStore is constructed with a non-positive interval.
	defaultCleanupInterval = time.Hour
)

// Sentinel errors for the Postgres dedup store.
var (
	// ErrInvalidCleanupInterval is returned when a non-positive cleanup interval is provided.
	ErrInvalidCleanupInterval = errors.New("cleanup interval must be greater than zero")
	// ErrNoDatabaseConnection is returned when a store is constructed with a nil connection.
	ErrNoDatabaseConnection = errors.New("no database connection provided")
)

// Compile-time interface assertion.
var _ ingestion.Store = (*PostgresDedupStore)(nil)

// PostgresDedupStore implements ingestion.Store with a PostgreSQL backend.
//
// MarkProcessed relies exclusively on the (topic, event_id) primary key
// constraint to decide "already present" — it never issues a SELECT before
// the INSERT. A background goroutine periodically purges records older than
// a configured age.
type PostgresDedupStore struct {
	conn            *Connection
	logger          *slog.Logger
	cleanupInterval time.Duration
	maxAgeDays      int
	cleanupStop     chan struct{}
	cleanupDone     chan struct{}
	closeOnce       sync.Once
}

// NewPostgresDedupStore creates a PostgreSQL-backed dedup store with a
// background cleanup goroutine. cleanupInterval defaults to one hour when
// non-positive; maxAgeDays of 0 disables the periodic purge (CleanupOldEvents
// is still callable directly).
func NewPostgresDedupStore(conn *Connection, cleanupInterval time.Duration, maxAgeDays int) (*PostgresDedupStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	}

	store := &PostgresDedupStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
		cleanupInterval: cleanupInterval,
		maxAgeDays:      maxAgeDays,
		cleanupStop:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	if maxAgeDays > 0 {
		go store.runCleanup()

		store.logger.Info("started dedup store cleanup goroutine",
			slog.Duration("interval", cleanupInterval),
			slog.Int("max_age_days", maxAgeDays),
		)
	} else {
		close(store.cleanupDone)
	}

	return store, nil
}

// Initialize is a no-op: schema creation is owned by cmd/migrator, not the
// store itself. It exists to satisfy ingestion.Store and to verify
// connectivity up front.
func (s *PostgresDedupStore) Initialize(ctx context.Context) error {
	if err := s.conn.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: %w", ingestion.ErrInitializeFailed, err)
	}

	return nil
}

// IsDuplicate reports whether a ProcessedRecord for (topic, event_id)
// already exists. Point-in-time only; never the authoritative dedup
// decision (see MarkProcessed).
func (s *PostgresDedupStore) IsDuplicate(ctx context.Context, topic, eventID string) (bool, error) {
	query := `SELECT 1 FROM processed_events WHERE topic = $1 AND event_id = $2 LIMIT 1`

	var exists int

	err := s.conn.QueryRowContext(ctx, query, topic, eventID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("is_duplicate query failed: %w", err)
	}

	return true, nil
}

// MarkProcessed atomically inserts a ProcessedRecord. Returns true when the
// row was newly inserted, false when (topic, event_id) already existed.
// The uniqueness constraint is the sole source of truth: no SELECT precedes
// the INSERT.
func (s *PostgresDedupStore) MarkProcessed(
	ctx context.Context,
	topic, eventID, timestamp, source string,
) (bool, error) {
	query := `
		INSERT INTO processed_events (topic, event_id, source, event_time, processed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (topic, event_id) DO NOTHING
	`

	result, err := s.conn.ExecContext(ctx, query, topic, eventID, source, timestamp)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
			return false, nil
		}

		return false, fmt.Errorf("mark_processed failed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark_processed: failed to read rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// GetProcessedCount returns the total number of ProcessedRecords.
func (s *PostgresDedupStore) GetProcessedCount(ctx context.Context) (int64, error) {
	var count int64

	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_events`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("get_processed_count failed: %w", err)
	}

	return count, nil
}

// GetTopics returns the distinct topics currently represented, sorted.
func (s *PostgresDedupStore) GetTopics(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT DISTINCT topic FROM processed_events ORDER BY topic ASC`)
	if err != nil {
		return nil, fmt.Errorf("get_topics failed: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	topics := make([]string, 0)

	for rows.Next() {
		var topic string

		if err := rows.Scan(&topic); err != nil {
			return nil, fmt.Errorf("get_topics: failed to scan row: %w", err)
		}

		topics = append(topics, topic)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get_topics: row iteration failed: %w", err)
	}

	return topics, nil
}

// GetEventsByTopic returns events for a topic, most-recent-first, capped at
// limit when limit > 0.
func (s *PostgresDedupStore) GetEventsByTopic(
	ctx context.Context,
	topic string,
	limit int,
) ([]ingestion.TopicEvent, error) {
	query := `
		SELECT event_id, event_time, source, processed_at
		FROM processed_events
		WHERE topic = $1
		ORDER BY processed_at DESC
	`

	args := []interface{}{topic}

	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get_events_by_topic failed: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	events := make([]ingestion.TopicEvent, 0)

	for rows.Next() {
		var (
			event       ingestion.TopicEvent
			processedAt time.Time
		)

		if err := rows.Scan(&event.EventID, &event.Timestamp, &event.Source, &processedAt); err != nil {
			return nil, fmt.Errorf("get_events_by_topic: failed to scan row: %w", err)
		}

		event.ProcessedAt = processedAt.UTC().Format(time.RFC3339Nano)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get_events_by_topic: row iteration failed: %w", err)
	}

	return events, nil
}

// GetCountByTopic returns the number of records for a given topic.
func (s *PostgresDedupStore) GetCountByTopic(ctx context.Context, topic string) (int64, error) {
	var count int64

	query := `SELECT COUNT(*) FROM processed_events WHERE topic = $1`

	err := s.conn.QueryRowContext(ctx, query, topic).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("get_count_by_topic failed: %w", err)
	}

	return count, nil
}

// CleanupOldEvents removes records whose processed_at is older than
// now - maxAgeDays, in batches, and returns the number of rows deleted.
func (s *PostgresDedupStore) CleanupOldEvents(ctx context.Context, maxAgeDays int) (int64, error) {
	if maxAgeDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)

	var totalDeleted int64

	for {
		if ctx.Err() != nil {
			return totalDeleted, fmt.Errorf("cleanup_old_events cancelled: %w", ctx.Err())
		}

		query := `
			DELETE FROM processed_events
			WHERE (topic, event_id) IN (
				SELECT topic, event_id
				FROM processed_events
				WHERE processed_at < $1
				ORDER BY processed_at ASC
				LIMIT $2
			)
		`

		result, err := s.conn.ExecContext(ctx, query, cutoff, cleanupBatchSize)
		if err != nil {
			return totalDeleted, fmt.Errorf("cleanup_old_events failed: %w", err)
		}

		rowsDeleted, err := result.RowsAffected()
		if err != nil {
			return totalDeleted, fmt.Errorf("cleanup_old_events: failed to read rows affected: %w", err)
		}

		totalDeleted += rowsDeleted

		if rowsDeleted < cleanupBatchSize {
			break
		}

		select {
		case <-ctx.Done():
			return totalDeleted, fmt.Errorf("cleanup_old_events cancelled: %w", ctx.Err())
		case <-time.After(batchSleepDuration):
		}
	}

	return totalDeleted, nil
}

// HealthCheck delegates to the underlying connection.
func (s *PostgresDedupStore) HealthCheck(ctx context.Context) error {
	if s.conn == nil {
		return ErrNoDatabaseConnection
	}

	return s.conn.HealthCheck(ctx)
}

// Close stops the cleanup goroutine gracefully. Safe to call multiple
// times. Does not close the underlying database connection, which is
// managed externally.
func (s *PostgresDedupStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.cleanupStop)

		select {
		case <-s.cleanupDone:
			s.logger.Info("dedup store cleanup goroutine stopped gracefully")
		case <-time.After(shutdownTimeout):
			s.logger.Warn("dedup store cleanup goroutine did not stop within timeout")
		}
	})

	return nil
}

// runCleanup periodically purges records older than maxAgeDays until Close
// is called.
func (s *PostgresDedupStore) runCleanup() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		select {
		case <-s.cleanupStop:
			cancel()
			s.logger.Info("stopping dedup store cleanup goroutine")

			return
		case <-ticker.C:
			cleanupCtx, cleanupCancel := context.WithTimeout(ctx, cleanupQueryTimeout)

			deleted, err := s.CleanupOldEvents(cleanupCtx, s.maxAgeDays)
			if err != nil {
				s.logger.Error("dedup store cleanup failed", slog.String("error", err.Error()))
			} else if deleted > 0 {
				s.logger.Info("dedup store cleanup completed", slog.Int64("rows_deleted", deleted))
			}

			cleanupCancel()
		}
	}
}
