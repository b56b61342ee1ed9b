package handlers

import (
	"net/http"
	"strings"
	"time"

	"sentinel-console/config"
	"sentinel-console/core/keycloak"
	"sentinel-console/core/session"
	"sentinel-console/core/store"
	"sentinel-console/core/utils"
	"sentinel-console/gui"

	"github.com/gofrs/uuid/v5"
)

const (
	stateCookieName   = "sentinel_oauth_state"
	stateCookieMaxAge = 10 * time.Minute
)

type AuthHandler struct {
	cfg      *config.AppConfig
	keycloak *keycloak.Client
	manager  *session.Manager
	sessions store.SessionStore
	audits   store.AuditStore
	logger   *utils.Logger
}

func NewAuthHandler(cfg *config.AppConfig, kc *keycloak.Client, manager *session.Manager, sessions store.SessionStore, audits store.AuditStore, logger *utils.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, keycloak: kc, manager: manager, sessions: sessions, audits: audits, logger: logger}
}

func (h *AuthHandler) secureCookies() bool {
	return strings.HasPrefix(h.cfg.BaseURL, "https://")
}

func (h *AuthHandler) callbackURL() string {
	return h.cfg.BaseURL + "/auth/callback"
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := gui.RenderLogin(w, gui.LoginData{Redirect: sanitizeRedirect(r.URL.Query().Get("redirect"))}); err != nil {
		h.logger.Errorf("render login: %v", err)
	}
}

func (h *AuthHandler) UnauthorizedPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := gui.RenderUnauthorized(w); err != nil {
		h.logger.Errorf("render unauthorized: %v", err)
	}
}

// LoginStart begins the authorization-code flow. The state value and
// the post-login destination travel in a short-lived cookie.
func (h *AuthHandler) LoginStart(w http.ResponseWriter, r *http.Request) {
	state, err := uuid.NewV4()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	redirect := sanitizeRedirect(r.URL.Query().Get("redirect"))
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state.String() + "|" + redirect,
		Path:     "/auth",
		MaxAge:   int(stateCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
	authURL := h.keycloak.OAuthConfig(h.callbackURL()).AuthCodeURL(state.String())
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback finishes the flow: state check, code exchange, session
// establishment, signed session cookie.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.failLogin(w, r, "state cookie missing")
		return
	}
	wantState, redirect, found := strings.Cut(stateCookie.Value, "|")
	if !found || r.URL.Query().Get("state") != wantState {
		h.failLogin(w, r, "state mismatch")
		return
	}
	h.clearCookie(w, stateCookieName, "/auth")

	code := r.URL.Query().Get("code")
	if code == "" {
		h.failLogin(w, r, "code missing")
		return
	}
	tok, err := h.keycloak.OAuthConfig(h.callbackURL()).Exchange(r.Context(), code)
	if err != nil {
		h.logger.Errorf("code exchange: %v", err)
		h.failLogin(w, r, "code exchange failed")
		return
	}
	rec, err := h.manager.Establish(r.Context(), tok, session.ClientMeta{IP: clientIP(r), UserAgent: r.UserAgent()})
	if err != nil {
		h.logger.Errorf("establish session: %v", err)
		h.failLogin(w, r, "session establish failed")
		return
	}
	_ = h.audits.Log(r.Context(), rec.Username, store.AuditLoginSuccess, "ip="+rec.IP)

	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    session.SignCookie(rec.ID, h.cfg.SessionSecret),
		Path:     "/",
		MaxAge:   int(h.manager.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, sanitizeRedirect(redirect), http.StatusFound)
}

func (h *AuthHandler) failLogin(w http.ResponseWriter, r *http.Request, reason string) {
	_ = h.audits.Log(r.Context(), "", store.AuditLoginFailure, reason)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// Logout revokes the console session and sends the browser through the
// provider's front-channel logout back to the login page.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(session.CookieName); err == nil && cookie.Value != "" {
		if id, ok := session.VerifyCookie(cookie.Value, h.cfg.SessionSecret); ok {
			username := ""
			if sess, err := h.manager.Peek(r.Context(), id); err == nil && sess != nil {
				username = sess.User.ID
			}
			if err := h.manager.Revoke(r.Context(), id, "logout"); err != nil {
				h.logger.Errorf("logout revoke: %v", err)
			}
			_ = h.audits.Log(r.Context(), username, store.AuditLogout, "")
		}
	}
	h.clearCookie(w, session.CookieName, "/")
	http.Redirect(w, r, h.keycloak.LogoutURL(h.cfg.BaseURL+"/login"), http.StatusFound)
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
}

// Me returns the principal subset of the session.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, sess.User)
}

// Session returns the full consumer-facing session shape, including the
// error flag the expired-session overlay watches.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
