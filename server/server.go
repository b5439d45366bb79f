// Package server is the dispatch layer: it upgrades WebSocket connections,
// decodes wire messages into typed commands, applies them to the session
// registry, and publishes the effects through the connection hub. It owns the
// per-connection concerns the core deliberately leaves out: rate limiting,
// display capacity, reconnect-override eviction and disconnect cleanup.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openlift/verdict/config"
	"github.com/openlift/verdict/hub"
	"github.com/openlift/verdict/protocol"
	"github.com/openlift/verdict/session"
)

// Server wires the registry and hub to HTTP and WebSocket endpoints. Both
// collaborators are constructed once at process start and passed in; nothing
// here is a package global.
type Server struct {
	cfg      config.Config
	registry *session.Registry
	hub      *hub.Hub
	log      *slog.Logger
}

// New creates a Server. A nil logger falls back to slog.Default.
func New(cfg config.Config, registry *session.Registry, h *hub.Hub, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, registry: registry, hub: h, log: log}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/sessions", s.handleCreateSession)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSessionRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"detail": "method not allowed"})
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "name cannot be empty"})
		return
	}

	code, err := s.registry.Create(req.Name)
	if err != nil {
		s.log.Error("session create failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "internal server error"})
		return
	}
	s.log.Info("session created", "session_code", code)
	writeJSON(w, http.StatusOK, map[string]string{"session_code": code})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := Upgrade(w, r, s.cfg.AllowedOrigin)
	if err != nil {
		s.log.Warn("ws upgrade failed", "origin", r.Header.Get("Origin"), "err", err)
		return
	}
	s.serveClient(r.Context(), sock)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RunBackground drives the periodic snapshot save and stale-session sweep
// until ctx is canceled. Both run independently of request traffic.
func (s *Server) RunBackground(ctx context.Context) {
	snapshot := time.NewTicker(s.cfg.SnapshotInterval)
	sweep := time.NewTicker(s.cfg.SweepInterval)
	defer snapshot.Stop()
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-snapshot.C:
			if err := s.registry.SaveSnapshot(s.cfg.SnapshotPath); err != nil {
				s.log.Error("snapshot save failed", "err", err)
			}
		case <-sweep.C:
			for _, code := range s.registry.ExpireAndSweep(s.cfg.SessionTTL) {
				s.log.Info("session expired", "session_code", code)
			}
		}
	}
}

// NotifyShutdown warns every connected client the process is going down and
// writes a final snapshot.
func (s *Server) NotifyShutdown(ctx context.Context) {
	for _, code := range s.hub.Codes() {
		s.hub.Broadcast(ctx, code, protocol.ServerRestarting{Type: protocol.TypeServerRestarting})
	}
	if err := s.registry.SaveSnapshot(s.cfg.SnapshotPath); err != nil {
		s.log.Error("shutdown snapshot failed", "err", err)
	}
}
