package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"sentinel-console/api/handlers"
	"sentinel-console/config"
	"sentinel-console/core/incidents"
	"sentinel-console/core/keycloak"
	"sentinel-console/core/rbac"
	"sentinel-console/core/session"
	"sentinel-console/core/store"
	"sentinel-console/core/utils"

	"github.com/go-chi/chi/v5"
)

type Server struct {
	cfg        *config.AppConfig
	router     chi.Router
	httpServer *http.Server
	logger     *utils.Logger
	db         *sql.DB

	sessions     store.SessionStore
	audits       store.AuditStore
	manager      *session.Manager
	keycloak     *keycloak.Client
	policy       *rbac.Policy
	routes       *rbac.RouteTable
	incidentsSvc *incidents.Service
	refreshLoop  *session.RefreshLoop
	janitor      *session.Janitor
	metrics      *metricsSet

	auth          *handlers.AuthHandler
	incidentsAPI  *handlers.IncidentsHandler
	sessionsAdmin *handlers.SessionsHandler
	logsAPI       *handlers.LogsHandler
	dashboardAPI  *handlers.DashboardHandler
}

func NewServer(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) *Server {
	sessions := store.NewSessionsStore(db)
	audits := store.NewAuditStore(db)
	incidentsStore := store.NewIncidentsStore(db)
	kc := keycloak.NewClient(cfg.Keycloak.Issuer, cfg.Keycloak.ClientID, cfg.Keycloak.ClientSecret,
		time.Duration(cfg.Keycloak.RequestTimeoutSec)*time.Second)
	manager := session.NewManager(sessions, audits, kc, cfg.SessionTTL, logger)
	incidentsSvc := incidents.NewService(incidentsStore, audits)
	policy := rbac.DefaultPolicy()

	s := &Server{
		cfg:          cfg,
		router:       chi.NewRouter(),
		logger:       logger,
		db:           db,
		sessions:     sessions,
		audits:       audits,
		manager:      manager,
		keycloak:     kc,
		policy:       policy,
		routes:       rbac.DefaultRouteTable(),
		incidentsSvc: incidentsSvc,
		refreshLoop:  session.NewRefreshLoop(cfg.Refresh, sessions, manager, logger),
		janitor:      session.NewJanitor(cfg.Cleanup, sessions, logger),
	}
	s.auth = handlers.NewAuthHandler(cfg, kc, manager, sessions, audits, logger)
	s.incidentsAPI = handlers.NewIncidentsHandler(incidentsSvc, logger)
	s.sessionsAdmin = handlers.NewSessionsHandler(sessions, audits, logger)
	s.logsAPI = handlers.NewLogsHandler(audits)
	s.dashboardAPI = handlers.NewDashboardHandler(cfg.Dashboards, sessions, incidentsStore, logger)
	s.registerRoutes()
	s.registerObservabilityRoutes()
	return s
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) Start(ctx context.Context) error {
	s.refreshLoop.StartWithContext(ctx)
	if err := s.janitor.Start(); err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Printf("listening on %s", s.cfg.ListenAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if err := s.refreshLoop.StopWithContext(ctx); err != nil {
		s.logger.Errorf("refresh loop stop: %v", err)
	}
	s.janitor.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.Use(securityHeaders)
	s.router.Use(s.loggingMiddleware)

	// Public surface. The gate never sees these paths.
	s.router.Get("/login", s.auth.LoginPage)
	s.router.Get("/unauthorized", s.auth.UnauthorizedPage)
	s.router.Get("/auth/login", s.auth.LoginStart)
	s.router.Get("/auth/callback", s.auth.Callback)
	s.router.Post("/auth/logout", s.auth.Logout)

	// Server-rendered pages behind the request gate.
	s.router.Group(func(r chi.Router) {
		r.Use(s.requestGate)
		r.Get("/", s.appView("Dashboard", "/"))
		r.Get("/incidents", s.appView("Incidents", "/incidents"))
		r.Get("/reports", s.appView("Reports", "/reports"))
		r.Get("/audit", s.appView("Audit log", "/audit"))
		r.Get("/sessions", s.appView("Sessions", "/sessions"))
		r.Get("/devices", s.appView("Devices", "/devices"))
		r.Get("/admin", s.appView("Administration", "/admin"))
		r.Get("/settings", s.appView("Settings", "/settings"))
	})

	// JSON API. withSession resolves the session through the manager,
	// refreshing an expired token before the handler runs.
	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.withSession)
		r.Get("/auth/me", s.auth.Me)
		r.Get("/auth/session", s.auth.Session)

		r.With(s.requirePermission("view_dashboards")).Get("/dashboard", s.dashboardAPI.Summary)
		r.With(s.requirePermission("view_audit_logs")).Get("/logs", s.logsAPI.List)

		r.Route("/incidents", func(r chi.Router) {
			r.With(s.requirePermission("view_incidents")).Get("/", s.incidentsAPI.List)
			r.With(s.requirePermission("manage_incidents")).Post("/", s.incidentsAPI.Create)
			r.With(s.requirePermission("manage_incidents")).Post("/{id}/close", s.incidentsAPI.Close)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Use(s.requirePermission("manage_sessions"))
			r.Get("/", s.sessionsAdmin.List)
			r.Delete("/{id}", s.sessionsAdmin.Revoke)
		})
	})
}
