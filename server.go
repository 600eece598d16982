package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Server handles incoming HTTP requests for interacting with the
// configured gateway instance
type Server struct {
	Logger  *slog.Logger
	Gateway *Gateway
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /publish", s.handlePublish)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)

}

// handlePublish processes incoming HTTP POST requests to publish messages
// through the gateway's broker session
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "", http.StatusMethodNotAllowed)
		return
	}

	type PublishRequest struct {
		Topic   string `json:"topic"`
		Payload string `json:"payload"`
	}

	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Topic == "" || req.Payload == "" {
		s.sendError(w, "both 'topic' and 'payload' fields are required", http.StatusBadRequest)
		return
	}

	if err := s.Gateway.Publish(r.Context(), req.Topic, []byte(req.Payload)); err != nil {
		s.Logger.Error("Failed to publish", "error", err, "topic", req.Topic)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.Logger.Info("Message published", "topic", req.Topic, "payload_length", len(req.Payload))
	w.WriteHeader(http.StatusOK)
}

// handleStatus reports the gateway's current session state and counters
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.Gateway.Status(r.Context())
	if err != nil {
		s.sendError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
