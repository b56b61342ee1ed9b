package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"sentinel-console/core/rbac"
	"sentinel-console/core/session"
	"sentinel-console/core/store"
)

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; img-src 'self' data:; object-src 'none'; frame-ancestors 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// principalKey carries a slot the session middlewares fill once they
// resolve the principal, so the request log sees it after the fact.
type principalKey struct{}

func noteUser(ctx context.Context, id string) {
	if slot, ok := ctx.Value(principalKey{}).(*string); ok && id != "" {
		*slot = id
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		user := "-"
		r = r.WithContext(context.WithValue(r.Context(), principalKey{}, &user))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.logger != nil {
			s.logger.Printf("RESP %s %s user=%s status=%d dur=%s bytes=%d", r.Method, r.URL.Path, user, rec.status, time.Since(start), rec.size)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// sessionIDFromRequest returns the verified session id carried by the
// cookie, or "" when the cookie is absent or fails verification.
func (s *Server) sessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	id, ok := session.VerifyCookie(cookie.Value, s.cfg.SessionSecret)
	if !ok {
		return ""
	}
	return id
}

// requestGate guards the server-rendered pages. It checks session
// presence and max-age expiry only; token refresh belongs to the API
// path through the session manager. Outcomes: pass through, redirect to
// /login with the original destination, or redirect to /unauthorized.
func (s *Server) requestGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.routes.IsPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		id := s.sessionIDFromRequest(r)
		var sess *session.Session
		if id != "" {
			var err error
			sess, err = s.manager.Peek(r.Context(), id)
			if err != nil && !errors.Is(err, session.ErrNoSession) {
				s.logger.Errorf("gate session lookup: %v", err)
			}
		}
		if sess == nil {
			s.observeGate("unauthenticated")
			http.Redirect(w, r, "/login?redirect="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
			return
		}
		noteUser(r.Context(), sess.User.ID)
		if required, ok := s.routes.RequiredRoles(r.URL.Path); ok {
			if !rbac.HasRequiredRole(sess.User.Roles, required) {
				s.observeGate("denied")
				_ = s.audits.Log(r.Context(), sess.User.ID, store.AuditAccessDenied, r.URL.Path)
				http.Redirect(w, r, "/unauthorized", http.StatusFound)
				return
			}
		}
		s.observeGate("allowed")
		next.ServeHTTP(w, r.WithContext(session.NewContext(r.Context(), sess, id)))
	})
}

// withSession guards the JSON API. Unlike the gate it goes through the
// manager's Read path, so an expired access token is refreshed before
// the handler sees the session.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := s.sessionIDFromRequest(r)
		if id == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		sess, err := s.manager.Read(r.Context(), id)
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				s.logger.Errorf("session read %s %s: %v", r.Method, r.URL.Path, err)
			}
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		noteUser(r.Context(), sess.User.ID)
		_ = s.sessions.Touch(r.Context(), id, time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(session.NewContext(r.Context(), sess, id)))
	})
}

func (s *Server) requirePermission(perm rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := session.FromContext(r.Context())
			if sess == nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			if !s.policy.Allowed(sess.User.Roles, perm) {
				_ = s.audits.Log(r.Context(), sess.User.ID, store.AuditAccessDenied, r.Method+" "+r.URL.Path)
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
