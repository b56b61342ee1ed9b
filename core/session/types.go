package session

import (
	"errors"

	"sentinel-console/core/store"
)

// ErrFlagReauthRequired is the fixed error flag value carried by a
// session whose token refresh failed. It is cleared only by a fresh
// login.
const ErrFlagReauthRequired = "RefreshAccessTokenError"

var ErrNoSession = errors.New("no session")

// User is the principal subset surfaced to handlers and templates.
type User struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// Session is the shape consumers see. The refresh token stays in the
// store layer. Error, when set, means the access token is stale and
// reauthentication is required.
type Session struct {
	User        User   `json:"user"`
	AccessToken string `json:"accessToken"`
	Error       string `json:"error,omitempty"`
}

func viewOf(rec *store.SessionRecord) *Session {
	name := rec.Name
	if name == "" {
		name = rec.Username
	}
	return &Session{
		User: User{
			ID:    rec.UserID,
			Name:  name,
			Email: rec.Email,
			Roles: rec.Roles,
		},
		AccessToken: rec.AccessToken,
		Error:       rec.RefreshError,
	}
}
