package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"sentinel-console/core/incidents"
	"sentinel-console/core/session"
	"sentinel-console/core/utils"

	"github.com/go-chi/chi/v5"
)

type IncidentsHandler struct {
	svc    *incidents.Service
	logger *utils.Logger
}

func NewIncidentsHandler(svc *incidents.Service, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{svc: svc, logger: logger}
}

func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.svc.List(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		h.logger.Errorf("incidents list: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": items})
}

func (h *IncidentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title    string `json:"title"`
		Severity string `json:"severity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}
	sess := session.FromContext(r.Context())
	inc, err := h.svc.Create(r.Context(), req.Title, req.Severity, sess.User.ID)
	if err != nil {
		switch {
		case errors.Is(err, incidents.ErrTitleRequired), errors.Is(err, incidents.ErrInvalidSeverity):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			h.logger.Errorf("incidents create: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

func (h *IncidentsHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad id"})
		return
	}
	sess := session.FromContext(r.Context())
	inc, err := h.svc.Close(r.Context(), id, sess.User.ID)
	if err != nil {
		if errors.Is(err, incidents.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		h.logger.Errorf("incidents close: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, inc)
}
