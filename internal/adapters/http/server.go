// Package http exposes the canonical turn API over JSON for web clients.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agrivaani/agrivaani/internal/logging"
	"github.com/agrivaani/agrivaani/pkg/domain"
)

// Engine is the conversation driver surface the server needs.
type Engine interface {
	Turn(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error)
}

// FlowLister enumerates the loaded flows.
type FlowLister interface {
	IDs() []string
}

// Server handles the canonical turn API.
type Server struct {
	engine Engine
	flows  FlowLister
	logger *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler for the turn API.
func NewHandler(engine Engine, flows FlowLister, opts ...Option) http.Handler {
	s := &Server{
		engine: engine,
		flows:  flows,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Post("/turn", s.handleTurn)
	r.Get("/flows", s.handleFlows)
	r.Get("/healthz", s.handleHealthz)
	return r
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req domain.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FlowID == "" || req.SessionKey == "" {
		writeError(w, http.StatusBadRequest, "flowId and sessionKey are required")
		return
	}
	if req.TurnID == "" {
		req.TurnID = uuid.NewString()
	}
	if req.Channel == "" {
		req.Channel = "web"
	}

	resp, err := s.engine.Turn(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownFlow):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrInvalidState):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("turn failed", "flow", req.FlowID, "session_key", req.SessionKey, "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFlows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"flows": s.flows.IDs()})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
