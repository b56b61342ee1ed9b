package store

import "time"

// SessionRecord is the persisted console session. Token fields are only
// touched by the session manager's refresh path; the refresh token never
// leaves this layer toward handlers or templates.
type SessionRecord struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Username       string     `json:"username"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Roles          []string   `json:"roles"`
	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	TokenExpiresAt time.Time  `json:"token_expires_at"`
	RefreshError   string     `json:"refresh_error,omitempty"`
	LastRefreshAt  *time.Time `json:"last_refresh_at,omitempty"`
	IP             string     `json:"ip"`
	UserAgent      string     `json:"user_agent"`
	CreatedAt      time.Time  `json:"created_at"`
	LastSeenAt     time.Time  `json:"last_seen_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	Revoked        bool       `json:"revoked"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	RevokedBy      string     `json:"revoked_by,omitempty"`
}

type Incident struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Severity  string     `json:"severity"`
	Status    string     `json:"status"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	ClosedBy  string     `json:"closed_by,omitempty"`
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
