package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"sentinel-console/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var processStartedAt = time.Now().UTC()

type metricsSet struct {
	refreshAttempts prometheus.Counter
	refreshFailures prometheus.Counter
	gateDecisions   *prometheus.CounterVec
}

func (m *metricsSet) RefreshAttempt() {
	if m != nil {
		m.refreshAttempts.Inc()
	}
}

func (m *metricsSet) RefreshFailure() {
	if m != nil {
		m.refreshFailures.Inc()
	}
}

func (s *Server) observeGate(outcome string) {
	if s.metrics != nil {
		s.metrics.gateDecisions.WithLabelValues(outcome).Inc()
	}
}

func (s *Server) registerObservabilityRoutes() {
	s.router.Get("/healthz", s.healthz)
	s.router.Get("/readyz", s.readyz)
	s.router.Method("GET", "/configz", s.requireMetricsAuth(http.HandlerFunc(s.configz)))

	if s.cfg != nil && s.cfg.Observability.MetricsEnabled {
		reg := prometheus.NewRegistry()
		_ = reg.Register(collectors.NewGoCollector())
		_ = reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "sentinel_uptime_seconds",
			Help: "Process uptime in seconds.",
		}, func() float64 {
			return time.Since(processStartedAt).Seconds()
		}))
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "sentinel_active_sessions",
			Help: "Console sessions that are neither revoked nor past max-age.",
		}, func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			n, err := s.sessions.CountActive(ctx)
			if err != nil {
				return 0
			}
			return float64(n)
		}))

		m := &metricsSet{
			refreshAttempts: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "sentinel_token_refresh_attempts_total",
				Help: "Token refresh attempts against the identity provider.",
			}),
			refreshFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "sentinel_token_refresh_failures_total",
				Help: "Token refresh attempts that failed.",
			}),
			gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sentinel_gate_decisions_total",
				Help: "Request gate outcomes by decision.",
			}, []string{"outcome"}),
		}
		reg.MustRegister(m.refreshAttempts, m.refreshFailures, m.gateDecisions)
		s.metrics = m
		s.manager.SetObserver(m)

		handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		s.router.Method("GET", "/metrics", s.requireMetricsAuth(handler))
	}
}

func (s *Server) requireMetricsAuth(next http.Handler) http.Handler {
	if s == nil || s.cfg == nil {
		return next
	}
	token := strings.TrimSpace(s.cfg.Observability.MetricsToken)
	if token == "" {
		if s.cfg.IsDev() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
	expected := "Bearer " + token
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != expected {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// healthz reports degraded, not failing, when the identity provider's
// discovery endpoint is unreachable: the console keeps serving existing
// sessions either way.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	idp := "ok"
	if err := s.keycloak.Discover(ctx); err != nil {
		idp = "degraded"
		s.logger.Errorf("discovery probe: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"idp":        idp,
		"now":        time.Now().UTC().Format(time.RFC3339Nano),
		"uptime_sec": int64(time.Since(processStartedAt).Seconds()),
		"app_env":    s.cfg.AppEnv,
	})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()
	if s == nil || s.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
		return
	}
	if err := s.db.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// configz reports which required variables are set, never their values.
func (s *Server) configz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"vars": config.Presence(s.cfg),
	})
}
