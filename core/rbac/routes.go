package rbac

import "strings"

// RoutePolicyEntry maps a path prefix to the roles permitted there.
// Matching is segment-bounded: "/devices" covers "/devices" and
// "/devices/..." but not "/devices-lab". Entries are evaluated in
// declaration order, first match wins. A path with no matching entry is
// open to any authenticated principal.
type RoutePolicyEntry struct {
	Prefix string
	Roles  []string
}

var defaultRoutePolicy = []RoutePolicyEntry{
	{Prefix: "/admin", Roles: []string{RoleAdmin}},
	{Prefix: "/devices", Roles: []string{RoleAdmin}},
	{Prefix: "/settings", Roles: []string{RoleAdmin}},
	{Prefix: "/sessions", Roles: []string{RoleAdmin}},
	{Prefix: "/audit", Roles: []string{RoleAdmin, RoleManager}},
	{Prefix: "/incidents", Roles: []string{RoleAdmin, RoleManager, RoleSupport}},
	{Prefix: "/reports", Roles: []string{RoleAdmin, RoleManager, RoleSupport}},
}

var defaultPublicPrefixes = []string{
	"/login",
	"/unauthorized",
	"/auth/",
	"/healthz",
	"/readyz",
	"/metrics",
	"/configz",
	"/static/",
}

type RouteTable struct {
	entries []RoutePolicyEntry
	public  []string
}

func NewRouteTable(entries []RoutePolicyEntry, public []string) *RouteTable {
	return &RouteTable{entries: entries, public: public}
}

func DefaultRouteTable() *RouteTable {
	return NewRouteTable(defaultRoutePolicy, defaultPublicPrefixes)
}

func (t *RouteTable) IsPublic(path string) bool {
	for _, p := range t.public {
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(path, p) || path == strings.TrimSuffix(p, "/") {
				return true
			}
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// RequiredRoles returns the first matching entry's role set and true, or
// nil and false when no entry covers the path.
func (t *RouteTable) RequiredRoles(path string) ([]string, bool) {
	for _, e := range t.entries {
		if path == e.Prefix || strings.HasPrefix(path, e.Prefix+"/") {
			return e.Roles, true
		}
	}
	return nil, false
}
