package rbac

type Permission string

type Role struct {
	Name        string
	Permissions []Permission
}

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleSupport = "support"
	RoleUser    = "user"
)

// rolePriority orders the fixed roles from most to least privileged. A
// principal holding several of them resolves permissions from the first
// match only.
var rolePriority = []string{RoleAdmin, RoleManager, RoleSupport, RoleUser}

var permissions = []Permission{
	"view_dashboards",
	"view_incidents", "generate_reports",
	"manage_incidents", "view_audit_logs",
	"manage_users", "manage_sessions", "manage_settings",
}

// Permission sets are strictly nested: each role carries everything the
// role below it carries. Keep that property when adding permissions.
var roles = []Role{
	{Name: RoleUser, Permissions: []Permission{
		"view_dashboards",
	}},
	{Name: RoleSupport, Permissions: []Permission{
		"view_dashboards",
		"view_incidents", "generate_reports",
	}},
	{Name: RoleManager, Permissions: []Permission{
		"view_dashboards",
		"view_incidents", "generate_reports",
		"manage_incidents", "view_audit_logs",
	}},
	{Name: RoleAdmin, Permissions: []Permission{
		"view_dashboards",
		"view_incidents", "generate_reports",
		"manage_incidents", "view_audit_logs",
		"manage_users", "manage_sessions", "manage_settings",
	}},
}

func AllPermissions() []Permission {
	out := make([]Permission, len(permissions))
	copy(out, permissions)
	return out
}

func DefaultRoles() []Role {
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}
