// Package main provides a test publisher that reads events from a Kafka
// topic and forwards them into the ingestion pipeline.
//
// Two modes: "http" (the default) POSTs each event to a running eventd
// instance's /publish endpoint; "dry-run" drives an in-memory dedup
// store, queue, and consumer in-process, without a running server, for
// local experimentation.
//
// In http mode, a Kafka offset is committed only after a successful
// publish, so a publish failure (network blip, 5xx) causes the same
// message to be redelivered and republished on the next poll. This
// mirrors the at-least-once upstream the core is designed to tolerate:
// eventd's dedup store, not this simulator, is the layer responsible for
// collapsing the resulting retries.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/correlator-io/eventd/internal/config"
	"github.com/correlator-io/eventd/internal/consumer"
	"github.com/correlator-io/eventd/internal/ingestion"
	"github.com/correlator-io/eventd/internal/queue"
	"github.com/correlator-io/eventd/internal/storage"
)

const (
	version = "1.0.0-dev"
	name    = "simulator"

	defaultPublishTimeout = 10 * time.Second
	dryRunQueueCapacity   = 1000
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	mode := flag.String("mode", "http", "delivery mode: http or dry-run")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("SIMULATOR_LOG_LEVEL", slog.LevelInfo),
	}))

	brokers := config.ParseCommaSeparatedList(config.GetEnvStr("SIMULATOR_KAFKA_BROKERS", "localhost:9092"))
	topic := config.GetEnvStr("SIMULATOR_KAFKA_TOPIC", "eventd.simulator")
	groupID := config.GetEnvStr("SIMULATOR_KAFKA_GROUP_ID", "eventd-simulator")

	logger.Info("starting simulator", slog.Any("brokers", brokers), slog.String("topic", topic), slog.String("mode", *mode))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})

	defer func() {
		_ = reader.Close()
	}()

	ctx := context.Background()

	switch *mode {
	case "dry-run":
		runDryRun(ctx, reader, logger)
	default:
		runHTTP(ctx, reader, logger)
	}
}

// runHTTP forwards each message to a running eventd instance's /publish
// endpoint, committing the Kafka offset only on success.
func runHTTP(ctx context.Context, reader *kafka.Reader, logger *slog.Logger) {
	publishURL := config.GetEnvStr("SIMULATOR_PUBLISH_URL", "http://localhost:8080/publish")
	client := &http.Client{Timeout: defaultPublishTimeout}

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			logger.Error("failed to fetch kafka message", slog.String("error", err.Error()))

			return
		}

		event := decodeEvent(msg.Value, logger)

		if err := publish(ctx, client, publishURL, event); err != nil {
			logger.Warn("publish failed, leaving offset uncommitted for redelivery",
				slog.String("topic", event.Topic),
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)

			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Error("failed to commit kafka offset", slog.String("error", err.Error()))
		}
	}
}

// runDryRun drives an in-process pipeline (in-memory dedup store, bounded
// queue, consumer) instead of calling a running server, for local
// experimentation without standing up Postgres or eventd.
func runDryRun(ctx context.Context, reader *kafka.Reader, logger *slog.Logger) {
	store := storage.NewInMemoryDedupStore()
	q := queue.NewBoundedQueue(dryRunQueueCapacity)
	c := consumer.New(q, store, consumer.NewLoggingSink(logger), logger)
	c.Start()

	defer func() {
		c.Stop()
		_ = store.Close()
	}()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			logger.Error("failed to fetch kafka message", slog.String("error", err.Error()))

			return
		}

		event := decodeEvent(msg.Value, logger)

		if err := q.Enqueue(event); err != nil {
			logger.Warn("dry-run queue full, dropping event",
				slog.String("topic", event.Topic),
				slog.String("event_id", event.EventID),
			)

			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Error("failed to commit kafka offset", slog.String("error", err.Error()))
		}
	}
}

// decodeEvent parses the Kafka message value as an ingestion.Event. A
// malformed payload is given a fresh random event_id so it still
// round-trips through the pipeline for observability, rather than being
// silently dropped.
func decodeEvent(value []byte, logger *slog.Logger) ingestion.Event {
	var event ingestion.Event
	if err := json.Unmarshal(value, &event); err != nil {
		logger.Warn("malformed kafka message, synthesizing envelope", slog.String("error", err.Error()))

		return ingestion.Event{
			Topic:     "simulator.malformed",
			EventID:   uuid.NewString(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Source:    "simulator",
		}
	}

	return event
}

// publish posts a single event to the eventd /publish endpoint.
func publish(ctx context.Context, client *http.Client, url string, event ingestion.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return &publishError{status: resp.StatusCode}
	}

	return nil
}

type publishError struct {
	status int
}

func (e *publishError) Error() string {
	return http.StatusText(e.status)
}
