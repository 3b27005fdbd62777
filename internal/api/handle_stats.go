package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/correlator-io/eventd/internal/api/middleware"
)

// handleStats returns process-wide ingestion counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to compute stats"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.logger.Error("failed to encode stats response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}
