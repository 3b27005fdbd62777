package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/correlator-io/eventd/internal/api/middleware"
	"github.com/correlator-io/eventd/internal/ingestion"
)

// eventEnvelope mirrors the ingestion.Event wire shape, so a queried event
// looks exactly like what the publisher sent, with processed_at exposed
// under the reserved "processed_at" payload key per spec.
type eventEnvelope struct {
	Topic     string                 `json:"topic"`
	EventID   string                 `json:"event_id"`
	Timestamp string                 `json:"timestamp"`
	Source    string                 `json:"source"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// eventsResponse is the body of GET /events.
type eventsResponse struct {
	Topic  string          `json:"topic"`
	Count  int             `json:"count"`
	Events []eventEnvelope `json:"events"`
}

// toEventEnvelopes maps store rows (which already know the caller's topic)
// into the Event envelope shape expected over HTTP.
func toEventEnvelopes(topic string, rows []ingestion.TopicEvent) []eventEnvelope {
	envelopes := make([]eventEnvelope, len(rows))

	for i, row := range rows {
		envelopes[i] = eventEnvelope{
			Topic:     topic,
			EventID:   row.EventID,
			Timestamp: row.Timestamp,
			Source:    row.Source,
			Payload: map[string]interface{}{
				"processed_at": row.ProcessedAt,
			},
		}
	}

	return envelopes
}

// handleEvents returns committed events for a topic, most-recent-first.
// topic is required; limit must be within [MinQueryLimit, MaxQueryLimit]
// when supplied, defaulting to DefaultQueryLimit when omitted.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	topic := r.URL.Query().Get("topic")
	if topic == "" {
		WriteErrorResponse(w, r, s.logger, UnprocessableEntity("topic query parameter is required"))

		return
	}

	limit, problem := parseEventsLimit(r.URL.Query().Get("limit"))
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	events, err := s.service.QueryEvents(r.Context(), topic, limit)
	if err != nil {
		s.logger.Error("query_events failed",
			slog.String("correlation_id", correlationID),
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to query events"))

		return
	}

	response := eventsResponse{
		Topic:  topic,
		Count:  len(events),
		Events: toEventEnvelopes(topic, events),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("failed to encode events response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// parseEventsLimit returns DefaultQueryLimit when raw is empty, and a 422
// ProblemDetail when raw is present but outside [MinQueryLimit, MaxQueryLimit]
// or not a valid integer.
func parseEventsLimit(raw string) (int, *ProblemDetail) {
	if raw == "" {
		return ingestion.DefaultQueryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, UnprocessableEntity("limit must be an integer")
	}

	if limit < ingestion.MinQueryLimit || limit > ingestion.MaxQueryLimit {
		return 0, UnprocessableEntity("limit must be between 1 and 1000")
	}

	return limit, nil
}
