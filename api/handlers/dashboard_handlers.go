package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"sentinel-console/config"
	"sentinel-console/core/store"
	"sentinel-console/core/utils"
)

// DashboardHandler summarizes local counts and probes the external
// dashboards service when one is configured. Upstream unreachability is
// reported in the payload, never as a request failure.
type DashboardHandler struct {
	cfg       config.DashboardsConfig
	sessions  store.SessionStore
	incidents store.IncidentStore
	logger    *utils.Logger
	http      *http.Client
}

func NewDashboardHandler(cfg config.DashboardsConfig, sessions store.SessionStore, incidents store.IncidentStore, logger *utils.Logger) *DashboardHandler {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DashboardHandler{
		cfg:       cfg,
		sessions:  sessions,
		incidents: incidents,
		logger:    logger,
		http:      &http.Client{Timeout: timeout},
	}
}

func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	activeSessions, err := h.sessions.CountActive(r.Context())
	if err != nil {
		h.logger.Errorf("dashboard sessions count: %v", err)
	}
	openIncidents, err := h.incidents.CountOpen(r.Context())
	if err != nil {
		h.logger.Errorf("dashboard incidents count: %v", err)
	}
	payload := map[string]any{
		"active_sessions": activeSessions,
		"open_incidents":  openIncidents,
	}
	if h.cfg.ServiceURL != "" {
		payload["upstream"] = h.probeUpstream(r.Context())
	}
	if h.cfg.GrafanaURL != "" {
		payload["grafana_url"] = h.cfg.GrafanaURL
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *DashboardHandler) probeUpstream(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.ServiceURL+"/healthz", nil)
	if err != nil {
		return "unreachable"
	}
	resp, err := h.http.Do(req)
	if err != nil {
		h.logger.Errorf("dashboards upstream: %v", err)
		return "unreachable"
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return "unreachable"
	}
	return "ok"
}
