// Package server provides the HTTP routes and the telephony WebSocket endpoint
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/GriffinCanCode/voicebridge/internal/config"
	apperrors "github.com/GriffinCanCode/voicebridge/internal/errors"
	"github.com/GriffinCanCode/voicebridge/internal/orchestrator"
	"github.com/GriffinCanCode/voicebridge/internal/telephony"
	"github.com/GriffinCanCode/voicebridge/internal/trace"
)

// Bridge runs one session per accepted telephony connection.
type Bridge interface {
	Serve(ctx context.Context, leg orchestrator.TelephonyLeg) error
	Count() int
}

// Sessions is the read side of the call registry.
type Sessions interface {
	List() []orchestrator.Snapshot
	Lookup(callID string) (orchestrator.Snapshot, bool)
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	bridge       Bridge
	sessions     Sessions
	metrics      http.Handler
	mediaPath    string
	writeTimeout time.Duration
}

// New creates a new server. metrics may be nil.
func New(bridge Bridge, sessions Sessions, metrics http.Handler, cfg *config.Config) *Server {
	return &Server{
		bridge:       bridge,
		sessions:     sessions,
		metrics:      metrics,
		mediaPath:    cfg.MediaStreamPath,
		writeTimeout: cfg.WriteTimeout,
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Telephony media stream
	mux.HandleFunc(s.mediaPath, s.handleMediaStream)

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	// REST API
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	log := trace.Logger(r.Context())

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error("websocket accept error", "error", err)
		return
	}
	log.Info("telephony stream connected", "remote", r.RemoteAddr, "active", s.bridge.Count())

	leg := telephony.NewConn(ws, s.writeTimeout)
	if err := s.bridge.Serve(r.Context(), leg); err != nil {
		if apperrors.IsCode(err, apperrors.CodeUnavailable) {
			log.Warn("telephony stream rejected", "error", err)
			return
		}
		log.Debug("session ended with error", "error", err)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(LivenessText))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.bridge.Count(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	list := s.sessions.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(list),
		"sessions": list,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, ok := s.sessions.Lookup(id)
	if !ok {
		writeError(w, apperrors.Newf(apperrors.CodeNotFound, "no live session for call %s", id))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders an AppError as {"code", "message"} with a matching HTTP status.
func writeError(w http.ResponseWriter, err *apperrors.AppError) {
	status := http.StatusInternalServerError
	switch err.Code {
	case apperrors.CodeNotFound:
		status = http.StatusNotFound
	case apperrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case apperrors.CodeUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{
		"code":    err.Code.String(),
		"message": err.Message,
	})
}
