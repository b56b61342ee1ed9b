package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sentinel-console/config"
	"sentinel-console/core/keycloak"
	"sentinel-console/core/session"
	"sentinel-console/core/store"
	"sentinel-console/core/utils"
)

func accessTokenWith(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + "."
}

// stub IdP serving the token endpoint for the code exchange.
func newStubIdP(t *testing.T, accessToken string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/protocol/openid-connect/token" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "authorization_code" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  accessToken,
			"refresh_token": "rt-1",
			"expires_in":    300,
			"token_type":    "Bearer",
		})
	}))
}

func newAuthFixture(t *testing.T, issuer string) (*AuthHandler, store.SessionStore) {
	t.Helper()
	cfg := &config.AppConfig{
		BaseURL:       "http://console.test",
		AppEnv:        "dev",
		SessionTTL:    time.Hour,
		SessionSecret: "test-secret",
		DBDriver:      "sqlite",
		DBPath:        "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared",
		Keycloak:      config.KeycloakConfig{ClientID: "console", ClientSecret: "secret", Issuer: issuer, RequestTimeoutSec: 2},
	}
	db, err := store.NewDB(cfg, nil)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	if err := store.ApplyMigrations(context.Background(), db, "sqlite", nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sessions := store.NewSessionsStore(db)
	audits := store.NewAuditStore(db)
	kc := keycloak.NewClient(issuer, "console", "secret", 2*time.Second)
	manager := session.NewManager(sessions, audits, kc, cfg.SessionTTL, utils.NewLogger())
	return NewAuthHandler(cfg, kc, manager, sessions, audits, utils.NewLogger()), sessions
}

func TestLoginStartRedirectsToProvider(t *testing.T) {
	h, _ := newAuthFixture(t, "http://sso.test/realms/console")
	req := httptest.NewRequest(http.MethodGet, "/auth/login?redirect=/incidents", nil)
	rr := httptest.NewRecorder()
	h.LoginStart(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("status = %d", rr.Code)
	}
	loc := rr.Header().Get("Location")
	if !strings.HasPrefix(loc, "http://sso.test/realms/console/protocol/openid-connect/auth?") {
		t.Fatalf("auth url: %q", loc)
	}
	if !strings.Contains(loc, "client_id=console") || !strings.Contains(loc, "state=") {
		t.Fatalf("auth url params: %q", loc)
	}
	var stateCookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == stateCookieName {
			stateCookie = c
		}
	}
	if stateCookie == nil || !strings.HasSuffix(stateCookie.Value, "|/incidents") {
		t.Fatalf("state cookie: %+v", stateCookie)
	}
}

func TestCallbackEstablishesSessionAndRedirects(t *testing.T) {
	access := accessTokenWith(t, map[string]any{
		"sub":                "u-7",
		"preferred_username": "jdoe",
		"realm_access":       map[string]any{"roles": []string{"manager"}},
	})
	idp := newStubIdP(t, access)
	defer idp.Close()
	h, sessions := newAuthFixture(t, idp.URL)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=st-1", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "st-1|/incidents"})
	rr := httptest.NewRecorder()
	h.Callback(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/incidents" {
		t.Fatalf("location = %q", loc)
	}
	var sessCookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == session.CookieName {
			sessCookie = c
		}
	}
	if sessCookie == nil || sessCookie.Value == "" {
		t.Fatalf("session cookie not set")
	}
	id, ok := session.VerifyCookie(sessCookie.Value, "test-secret")
	if !ok {
		t.Fatalf("cookie not verifiable")
	}
	rec, err := sessions.Get(context.Background(), id)
	if err != nil || rec == nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if rec.UserID != "u-7" || rec.Username != "jdoe" {
		t.Fatalf("claims not applied: %+v", rec)
	}
	if len(rec.Roles) != 1 || rec.Roles[0] != "manager" {
		t.Fatalf("roles: %v", rec.Roles)
	}
	if rec.RefreshToken != "rt-1" {
		t.Fatalf("refresh token not stored")
	}
}

func TestCallbackRejectsStateMismatch(t *testing.T) {
	h, _ := newAuthFixture(t, "http://sso.test/realms/console")
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=wrong", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "st-1|/"})
	rr := httptest.NewRecorder()
	h.Callback(rr, req)
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/login" {
		t.Fatalf("state mismatch must bounce to login: %d %q", rr.Code, rr.Header().Get("Location"))
	}
}

func TestLogoutRevokesAndRedirectsToProvider(t *testing.T) {
	h, sessions := newAuthFixture(t, "http://sso.test/realms/console")
	now := time.Now().UTC()
	rec := &store.SessionRecord{
		ID: "s-1", UserID: "u-1", Username: "jdoe",
		AccessToken: "a", RefreshToken: "r",
		TokenExpiresAt: now.Add(time.Minute),
		CreatedAt:      now, ExpiresAt: now.Add(time.Hour),
	}
	if err := sessions.Save(context.Background(), rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: session.SignCookie("s-1", "test-secret")})
	rr := httptest.NewRecorder()
	h.Logout(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("status = %d", rr.Code)
	}
	loc := rr.Header().Get("Location")
	if !strings.HasPrefix(loc, "http://sso.test/realms/console/protocol/openid-connect/logout?") {
		t.Fatalf("logout url: %q", loc)
	}
	if !strings.Contains(loc, "post_logout_redirect_uri=") {
		t.Fatalf("logout url params: %q", loc)
	}
	if got, _ := sessions.Get(context.Background(), "s-1"); got != nil {
		t.Fatalf("session must be revoked")
	}
}

func TestSanitizeRedirect(t *testing.T) {
	cases := map[string]string{
		"":                   "/",
		"/incidents":         "/incidents",
		"//evil.example.com": "/",
		"http://evil":        "/",
		"/a\r\nSet-Cookie:x": "/",
	}
	for in, want := range cases {
		if got := sanitizeRedirect(in); got != want {
			t.Fatalf("sanitizeRedirect(%q) = %q, want %q", in, got, want)
		}
	}
}
