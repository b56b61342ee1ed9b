package handlers

import (
	"net/http"

	"sentinel-console/core/session"
	"sentinel-console/core/store"
	"sentinel-console/core/utils"

	"github.com/go-chi/chi/v5"
)

// SessionsHandler is the session administration surface: list active
// console sessions and revoke one.
type SessionsHandler struct {
	sessions store.SessionStore
	audits   store.AuditStore
	logger   *utils.Logger
}

func NewSessionsHandler(sessions store.SessionStore, audits store.AuditStore, logger *utils.Logger) *SessionsHandler {
	return &SessionsHandler{sessions: sessions, audits: audits, logger: logger}
}

func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	recs, err := h.sessions.ListActive(r.Context())
	if err != nil {
		h.logger.Errorf("sessions list: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": recs})
}

func (h *SessionsHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad id"})
		return
	}
	by := ""
	if sess := session.FromContext(r.Context()); sess != nil {
		by = sess.User.ID
	}
	if err := h.sessions.Revoke(r.Context(), id, by); err != nil {
		h.logger.Errorf("session revoke: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	_ = h.audits.Log(r.Context(), by, store.AuditSessionRevoke, "session="+id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}
