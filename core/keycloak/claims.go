package keycloak

import (
	"fmt"
	"sort"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaims is the normalized view of a Keycloak access token. Role
// extraction unions the realm-wide list with every client-scoped list,
// collapsing duplicates. All provider-specific claim shapes stay behind
// this boundary.
type IdentityClaims struct {
	Subject  string
	Username string
	Name     string
	Email    string
	Roles    []string
}

type rawClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	ResourceAccess map[string]struct {
		Roles []string `json:"roles"`
	} `json:"resource_access"`
}

// DecodeClaims parses the access token without signature verification.
// The token was just received from the issuer over TLS; this decode is a
// claim extraction step, not an authentication step.
func DecodeClaims(accessToken string) (*IdentityClaims, error) {
	var raw rawClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, &raw); err != nil {
		return nil, fmt.Errorf("decode access token claims: %w", err)
	}

	set := map[string]struct{}{}
	for _, r := range raw.RealmAccess.Roles {
		set[r] = struct{}{}
	}
	for _, client := range raw.ResourceAccess {
		for _, r := range client.Roles {
			set[r] = struct{}{}
		}
	}
	roles := make([]string, 0, len(set))
	for r := range set {
		roles = append(roles, r)
	}
	sort.Strings(roles)

	return &IdentityClaims{
		Subject:  raw.Subject,
		Username: raw.PreferredUsername,
		Name:     raw.Name,
		Email:    raw.Email,
		Roles:    roles,
	}, nil
}
