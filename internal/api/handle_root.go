package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/correlator-io/eventd/internal/api/middleware"
)

// serviceName and serviceVersion identify this service in the root endpoint
// response. Version is a placeholder until build-time injection is wired up.
const (
	serviceName    = "eventd"
	serviceVersion = "dev"
)

// rootResponse is the body of GET /.
type rootResponse struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Status    string            `json:"status"`
	Endpoints map[string]string `json:"endpoints"`
}

// handleRoot describes the service and its endpoints.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	response := rootResponse{
		Service: serviceName,
		Version: serviceVersion,
		Status:  "running",
		Endpoints: map[string]string{
			"publish": "POST /publish",
			"events":  "GET /events?topic=T&limit=L",
			"stats":   "GET /stats",
			"health":  "GET /health",
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("failed to encode root response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)
	}
}

// handlePing responds to basic liveness checks.
func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}
