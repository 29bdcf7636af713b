package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/desertthunder/queuetify/internal/hub"
	"github.com/desertthunder/queuetify/internal/models"
	"github.com/desertthunder/queuetify/internal/shared"
)

type sessionResponse struct {
	SessionID string `json:"session_id"`
}

type healthResponse struct {
	Status string `json:"status"`
	hub.Stats
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.hub.Stats(r.Context())
	if err != nil {
		s.logger.Error("health: hub unavailable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Stats: stats})
}

// sessionExists writes the error response itself and reports false when the request should stop.
func (s *Server) sessionExists(w http.ResponseWriter, r *http.Request, sessionID string) bool {
	exists, err := s.store.SessionExists(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("failed to look up session", "session", sessionID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return false
	}
	return true
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if !s.sessionExists(w, r, sessionID) {
		return
	}

	setMembership(w, sessionID, RolePeer, s.opts.SecureCookies)
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: sessionID})
}

// handleKill only honours the host token issued for the session named in the path.
func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	token := cookieValue(r, HostCookie)
	if token == "" {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	session, err := s.store.Session(r.Context(), sessionID)
	if errors.Is(err, shared.ErrSessionNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("kill: failed to load session", "session", sessionID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if !shared.TokenMatches(token, session.HostTokenHash) {
		s.logger.Warn("kill: host token rejected", "session", sessionID)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if err := s.hub.Kill(sessionID); err != nil {
		s.logger.Error("kill: hub unavailable", "session", sessionID, "error", err)
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	s.logger.Info("kill requested", "session", sessionID)
	writeJSON(w, http.StatusAccepted, sessionResponse{SessionID: sessionID})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if !s.sessionExists(w, r, sessionID) {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session", sessionID, "error", err)
		return
	}

	client := newClient(conn, sessionID, s.hub, s.opts, s.logger)
	if err := s.hub.Connect(sessionID, client.id, client); err != nil {
		s.logger.Error("failed to register connection", "session", sessionID, "error", err)
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()

	if err := s.hub.Relay(models.GetState{SessionID: sessionID, ConnectionID: client.id}); err != nil {
		s.logger.Warn("failed to request initial state", "connection", client.id, "error", err)
	}
}
