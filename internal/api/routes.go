package api

import "net/http"

// setupRoutes registers the event-ingestion API's HTTP surface.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /publish", s.handlePublish)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /health", s.handleHealth)
}
