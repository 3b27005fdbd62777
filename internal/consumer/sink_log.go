package consumer

import (
	"context"
	"log/slog"

	"github.com/correlator-io/eventd/internal/ingestion"
)

// NewLoggingSink returns a Sink that records each committed event as a
// structured log line. It is the default sink wired in production when no
// richer downstream integration (message broker, webhook) is configured.
func NewLoggingSink(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}

	return SinkFunc(func(_ context.Context, event ingestion.Event) error {
		logger.Info("event committed",
			slog.String("topic", event.Topic),
			slog.String("event_id", event.EventID),
			slog.String("source", event.Source),
		)

		return nil
	})
}
