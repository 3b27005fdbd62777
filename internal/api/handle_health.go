package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/correlator-io/eventd/internal/api/middleware"
)

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status          string `json:"status"`
	ConsumerRunning bool   `json:"consumer_running"`
	QueueSize       int    `json:"queue_size"`
	Timestamp       string `json:"timestamp"`
}

// handleHealth reports "healthy" only when the consumer worker is running
// and the queue is below its high-water mark.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	health := s.service.HealthStatus()

	response := healthResponse{
		Status:          health.Status,
		ConsumerRunning: health.ConsumerRunning,
		QueueSize:       health.QueueSize,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("failed to encode health response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}
