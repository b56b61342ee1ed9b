package session

import (
	"context"
	"time"

	"sentinel-console/core/keycloak"
	"sentinel-console/core/store"
	"sentinel-console/core/utils"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// TokenRefresher is the identity-provider refresh boundary.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*keycloak.TokenSet, error)
}

// RefreshObserver receives refresh outcome signals for metrics.
type RefreshObserver interface {
	RefreshAttempt()
	RefreshFailure()
}

// ClientMeta is request metadata recorded on the session row.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// Manager owns the session record lifecycle. It is the only writer of
// the token fields: Establish on login, the coalesced refresh path on
// expiry.
type Manager struct {
	store     store.SessionStore
	audit     store.AuditStore
	refresher TokenRefresher
	logger    *utils.Logger
	ttl       time.Duration

	group    singleflight.Group
	observer RefreshObserver
}

func NewManager(st store.SessionStore, audit store.AuditStore, refresher TokenRefresher, ttl time.Duration, logger *utils.Logger) *Manager {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Manager{
		store:     st,
		audit:     audit,
		refresher: refresher,
		logger:    logger,
		ttl:       ttl,
	}
}

func (m *Manager) SetObserver(o RefreshObserver) { m.observer = o }

func (m *Manager) TTL() time.Duration { return m.ttl }

// Establish creates a session from a fresh token set. Claim decode
// failure is logged and the session proceeds with an empty role set;
// login availability wins over strict lockout here.
func (m *Manager) Establish(ctx context.Context, tok *oauth2.Token, meta ClientMeta) (*store.SessionRecord, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	rec := &store.SessionRecord{
		ID:             id.String(),
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		TokenExpiresAt: tok.Expiry.UTC(),
		IP:             meta.IP,
		UserAgent:      meta.UserAgent,
		CreatedAt:      now,
		LastSeenAt:     now,
		ExpiresAt:      now.Add(m.ttl),
	}
	claims, err := keycloak.DecodeClaims(tok.AccessToken)
	if err != nil {
		m.logger.Errorf("claim decode failed, continuing with empty role set: %v", err)
		rec.Roles = []string{}
	} else {
		rec.UserID = claims.Subject
		rec.Username = claims.Username
		rec.Name = claims.Name
		rec.Email = claims.Email
		rec.Roles = claims.Roles
	}
	if err := m.store.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Read resolves the session for consumers. A live access token is the
// fast path with no provider I/O. An expired one triggers a synchronous
// refresh; concurrent expired reads coalesce into one provider call and
// all observe its result. Refresh failure keeps the session alive with
// the error flag set.
func (m *Manager) Read(ctx context.Context, sessionID string) (*Session, error) {
	rec, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNoSession
	}
	if time.Now().Before(rec.TokenExpiresAt) {
		return viewOf(rec), nil
	}
	refreshed, err := m.refreshSession(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}
	if refreshed == nil {
		return nil, ErrNoSession
	}
	return viewOf(refreshed), nil
}

// Peek returns the session view without triggering a refresh. Used by
// the request gate, which only checks presence and max-age expiry.
func (m *Manager) Peek(ctx context.Context, sessionID string) (*Session, error) {
	rec, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNoSession
	}
	return viewOf(rec), nil
}

func (m *Manager) Revoke(ctx context.Context, sessionID, by string) error {
	return m.store.Revoke(ctx, sessionID, by)
}

// refreshSession is the single write path for token rotation. The
// singleflight key is the session id, so at most one provider call is
// in flight per session; the winning writer's result is read back by
// every coalesced caller. A non-zero horizon rotates tokens that will
// expire within it.
func (m *Manager) refreshSession(ctx context.Context, sessionID string, horizon time.Duration) (*store.SessionRecord, error) {
	// The refresh must not inherit caller cancellation: the winning
	// caller's context is shared by every coalesced reader, and a client
	// disconnect is not a provider failure. The provider client's own
	// timeout bounds the detached call.
	ctx = context.WithoutCancel(ctx)
	v, err, _ := m.group.Do(sessionID, func() (any, error) {
		rec, err := m.store.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return (*store.SessionRecord)(nil), nil
		}
		// Another coalesced caller may have rotated already.
		if time.Now().Add(horizon).Before(rec.TokenExpiresAt) && rec.RefreshError == "" {
			return rec, nil
		}
		if m.observer != nil {
			m.observer.RefreshAttempt()
		}
		now := time.Now().UTC()
		ts, err := m.refresher.Refresh(ctx, rec.RefreshToken)
		if err != nil {
			if m.observer != nil {
				m.observer.RefreshFailure()
			}
			m.logger.Errorf("token refresh failed for session %s: %v", rec.ID, err)
			if m.audit != nil {
				_ = m.audit.Log(ctx, rec.Username, store.AuditRefreshFailed, "session="+rec.ID)
			}
			if err := m.store.SetRefreshError(ctx, rec.ID, ErrFlagReauthRequired, now); err != nil {
				return nil, err
			}
			rec.RefreshError = ErrFlagReauthRequired
			rec.LastRefreshAt = &now
			return rec, nil
		}
		if err := m.store.UpdateTokens(ctx, rec.ID, ts.AccessToken, ts.RefreshToken, ts.ExpiresAt, now); err != nil {
			return nil, err
		}
		rec.AccessToken = ts.AccessToken
		rec.RefreshToken = ts.RefreshToken
		rec.TokenExpiresAt = ts.ExpiresAt.UTC()
		rec.RefreshError = ""
		rec.LastRefreshAt = &now
		if claims, err := keycloak.DecodeClaims(ts.AccessToken); err == nil {
			rec.Roles = claims.Roles
			if err := m.store.Save(ctx, rec); err != nil {
				return nil, err
			}
		}
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*store.SessionRecord), nil
}
