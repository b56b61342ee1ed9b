package rbac

import "sync"

type Policy struct {
	mu        sync.RWMutex
	rolePerms map[string]map[Permission]struct{}
}

func NewPolicy(roles []Role) *Policy {
	p := &Policy{rolePerms: map[string]map[Permission]struct{}{}}
	p.Replace(roles)
	return p
}

func DefaultPolicy() *Policy {
	return NewPolicy(DefaultRoles())
}

// HasRequiredRole applies OR semantics: an empty requirement is open
// access, otherwise any single held role from the requirement suffices.
func HasRequiredRole(userRoles []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	held := make(map[string]struct{}, len(userRoles))
	for _, r := range userRoles {
		held[r] = struct{}{}
	}
	for _, r := range required {
		if _, ok := held[r]; ok {
			return true
		}
	}
	return false
}

// PrimaryRole resolves the single role that determines a principal's
// permission set. Returns "" when none of the fixed roles is held.
func PrimaryRole(userRoles []string) string {
	held := make(map[string]struct{}, len(userRoles))
	for _, r := range userRoles {
		held[r] = struct{}{}
	}
	for _, r := range rolePriority {
		if _, ok := held[r]; ok {
			return r
		}
	}
	return ""
}

// HasPermission checks the primary role's permission set only. Roles do
// not compose additively: holding manager and support grants exactly the
// manager set. Unknown roles and permissions are denied.
func (p *Policy) HasPermission(primaryRole string, perm Permission) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	perms, ok := p.rolePerms[primaryRole]
	if !ok {
		return false
	}
	_, ok = perms[perm]
	return ok
}

// Allowed resolves the primary role from the held set and checks perm
// against it.
func (p *Policy) Allowed(userRoles []string, perm Permission) bool {
	return p.HasPermission(PrimaryRole(userRoles), perm)
}

// PermissionsFor returns the primary role's permission set. For menu
// building.
func (p *Policy) PermissionsFor(userRoles []string) []Permission {
	p.mu.RLock()
	defer p.mu.RUnlock()
	perms, ok := p.rolePerms[PrimaryRole(userRoles)]
	if !ok {
		return nil
	}
	out := make([]Permission, 0, len(perms))
	for perm := range perms {
		out = append(out, perm)
	}
	return out
}

func (p *Policy) Replace(roles []Role) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rp := make(map[string]map[Permission]struct{})
	for _, r := range roles {
		m := make(map[Permission]struct{})
		for _, perm := range r.Permissions {
			m[perm] = struct{}{}
		}
		rp[r.Name] = m
	}
	p.rolePerms = rp
}
