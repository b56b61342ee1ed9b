package handlers

import (
	"net/http"
	"strconv"
	"time"

	"sentinel-console/core/store"
)

type LogsHandler struct {
	audits store.AuditStore
}

func NewLogsHandler(audits store.AuditStore) *LogsHandler {
	return &LogsHandler{audits: audits}
}

func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		recs []store.AuditRecord
		err  error
	)
	if sinceRaw := q.Get("since"); sinceRaw != "" {
		since, perr := time.Parse(time.RFC3339, sinceRaw)
		if perr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad since"})
			return
		}
		limit, _ := strconv.Atoi(q.Get("limit"))
		recs, err = h.audits.ListFiltered(r.Context(), since, limit)
	} else {
		recs, err = h.audits.List(r.Context())
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": recs})
}
