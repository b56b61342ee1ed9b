package api

import (
	"net/http"

	"sentinel-console/core/rbac"
	"sentinel-console/core/session"
	"sentinel-console/gui"
)

type menuEntry struct {
	label string
	path  string
	perm  rbac.Permission
}

// Menu entries mirror the route policy: an entry only renders when the
// principal's permission set covers it.
var menuEntries = []menuEntry{
	{"Dashboard", "/", "view_dashboards"},
	{"Incidents", "/incidents", "view_incidents"},
	{"Reports", "/reports", "generate_reports"},
	{"Audit log", "/audit", "view_audit_logs"},
	{"Sessions", "/sessions", "manage_sessions"},
	{"Devices", "/devices", "manage_settings"},
	{"Administration", "/admin", "manage_users"},
	{"Settings", "/settings", "manage_settings"},
}

func (s *Server) menuFor(roles []string) []gui.MenuItem {
	var items []gui.MenuItem
	for _, e := range menuEntries {
		if s.policy.Allowed(roles, e.perm) {
			items = append(items, gui.MenuItem{Label: e.label, Path: e.path})
		}
	}
	return items
}

func (s *Server) appView(title, section string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		if sess == nil {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		data := gui.AppData{
			Title:   title,
			Section: section,
			Menu:    s.menuFor(sess.User.Roles),
			UserID:  sess.User.ID,
			Name:    sess.User.Name,
			Email:   sess.User.Email,
			Roles:   sess.User.Roles,
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := gui.RenderApp(w, data); err != nil {
			s.logger.Errorf("render %s: %v", section, err)
		}
	}
}
