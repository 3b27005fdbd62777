package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/correlator-io/eventd/internal/api/middleware"
	"github.com/correlator-io/eventd/internal/ingestion"
)

// handlePublish accepts a single Event or an EventBatch, validates the
// envelope, and hands valid events to the service for admission. The
// service's admission outcome (accepted/duplicate/queue-full) is always a
// 200: only envelope validation failures and unexpected internal errors
// return a non-200 status.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	events, problem := s.parsePublishRequest(r)
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	if err := s.validator.ValidateEventBatch(events); err != nil {
		WriteErrorResponse(w, r, s.logger, UnprocessableEntity(err.Error()))

		return
	}

	result, err := s.service.Publish(r.Context(), events)
	if err != nil {
		s.logger.Error("publish failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to publish events"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.Error("failed to encode publish response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// parsePublishRequest decodes a single Event or an EventBatch envelope from
// the request body, bounded by MaxRequestSize.
func (s *Server) parsePublishRequest(r *http.Request) ([]ingestion.Event, *ProblemDetail) {
	if r.ContentLength > 0 && r.ContentLength > s.config.MaxRequestSize {
		return nil, UnprocessableEntity(
			fmt.Sprintf("request body exceeds maximum size of %d bytes", s.config.MaxRequestSize),
		)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxRequestSize))
	if err != nil {
		return nil, UnprocessableEntity("failed to read request body: " + err.Error())
	}

	var batch ingestion.EventBatch
	if err := json.Unmarshal(body, &batch); err == nil && len(batch.Events) > 0 {
		return batch.Events, nil
	}

	var single ingestion.Event
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, UnprocessableEntity("invalid JSON: " + err.Error())
	}

	if single.Topic == "" && single.EventID == "" {
		return nil, UnprocessableEntity("request body must be an Event or a non-empty event batch")
	}

	return []ingestion.Event{single}, nil
}
