package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/correlator-io/eventd/internal/ingestion"
)

// NewKafkaSink returns a Sink that republishes each committed event to a
// downstream Kafka topic, for observability in local runs alongside
// cmd/simulator. A publish error here is surfaced to the consumer, which
// logs it; it never causes a re-enqueue or blocks the processed counter.
func NewKafkaSink(writer *kafka.Writer) Sink {
	return SinkFunc(func(ctx context.Context, event ingestion.Event) error {
		value, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event for kafka sink: %w", err)
		}

		msg := kafka.Message{
			Key:   []byte(event.Topic + ":" + event.EventID),
			Value: value,
		}

		if err := writer.WriteMessages(ctx, msg); err != nil {
			return fmt.Errorf("write to downstream kafka topic: %w", err)
		}

		return nil
	})
}
