package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

type SessionStore interface {
	Save(ctx context.Context, sess *SessionRecord) error
	// Get returns nil, nil for absent, revoked and max-age-expired
	// sessions. An expired access token does not hide the record; the
	// session manager handles token expiry.
	Get(ctx context.Context, id string) (*SessionRecord, error)
	ListActive(ctx context.Context) ([]SessionRecord, error)
	ListByUser(ctx context.Context, userID string) ([]SessionRecord, error)
	Revoke(ctx context.Context, id string, by string) error
	RevokeAllForUser(ctx context.Context, userID string, by string) error
	// UpdateTokens is the refresh write path: new token pair, new token
	// expiry, cleared error flag.
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, tokenExpiresAt, at time.Time) error
	SetRefreshError(ctx context.Context, id, flag string, at time.Time) error
	Touch(ctx context.Context, id string, now time.Time) error
	CountActive(ctx context.Context) (int, error)
	PurgeDead(ctx context.Context, now time.Time) (int64, error)
}

type sessionsStore struct {
	db *sql.DB
}

func NewSessionsStore(db *sql.DB) SessionStore {
	return &sessionsStore{db: db}
}

const sessionColumns = `id, user_id, username, name, email, roles, access_token, refresh_token, token_expires_at, refresh_error, last_refresh_at, ip, user_agent, created_at, last_seen_at, expires_at, revoked, revoked_at, revoked_by`

func (s *sessionsStore) Save(ctx context.Context, sess *SessionRecord) error {
	rolesJSON, _ := json.Marshal(sess.Roles)
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.LastSeenAt.IsZero() {
		sess.LastSeenAt = sess.CreatedAt
	}
	lastRefreshAt := any(nil)
	if sess.LastRefreshAt != nil {
		lastRefreshAt = *sess.LastRefreshAt
	}
	revokedAt := any(nil)
	if sess.RevokedAt != nil {
		revokedAt = *sess.RevokedAt
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions(`+sessionColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			user_id=excluded.user_id, username=excluded.username, name=excluded.name, email=excluded.email,
			roles=excluded.roles, access_token=excluded.access_token, refresh_token=excluded.refresh_token,
			token_expires_at=excluded.token_expires_at, refresh_error=excluded.refresh_error,
			last_refresh_at=excluded.last_refresh_at, ip=excluded.ip, user_agent=excluded.user_agent,
			last_seen_at=excluded.last_seen_at, expires_at=excluded.expires_at,
			revoked=excluded.revoked, revoked_at=excluded.revoked_at, revoked_by=excluded.revoked_by`,
		sess.ID, sess.UserID, sess.Username, sess.Name, sess.Email, string(rolesJSON),
		sess.AccessToken, sess.RefreshToken, sess.TokenExpiresAt, sess.RefreshError, lastRefreshAt,
		sess.IP, sess.UserAgent, sess.CreatedAt, sess.LastSeenAt, sess.ExpiresAt,
		boolToInt(sess.Revoked), revokedAt, sess.RevokedBy)
	return err
}

func scanSession(scan func(dest ...any) error) (*SessionRecord, error) {
	var sr SessionRecord
	var rolesStr string
	var revoked int
	var lastRefreshAt, revokedAt sql.NullTime
	if err := scan(&sr.ID, &sr.UserID, &sr.Username, &sr.Name, &sr.Email, &rolesStr,
		&sr.AccessToken, &sr.RefreshToken, &sr.TokenExpiresAt, &sr.RefreshError, &lastRefreshAt,
		&sr.IP, &sr.UserAgent, &sr.CreatedAt, &sr.LastSeenAt, &sr.ExpiresAt,
		&revoked, &revokedAt, &sr.RevokedBy); err != nil {
		return nil, err
	}
	sr.Revoked = revoked == 1
	if lastRefreshAt.Valid {
		t := lastRefreshAt.Time
		sr.LastRefreshAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		sr.RevokedAt = &t
	}
	if sr.LastSeenAt.IsZero() {
		sr.LastSeenAt = sr.CreatedAt
	}
	_ = json.Unmarshal([]byte(rolesStr), &sr.Roles)
	return &sr, nil
}

func (s *sessionsStore) Get(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=?`, id)
	sr, err := scanSession(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if sr.Revoked {
		return nil, nil
	}
	if time.Now().After(sr.ExpiresAt) {
		_ = s.Revoke(ctx, id, "system")
		return nil, nil
	}
	return sr, nil
}

func (s *sessionsStore) listWhere(ctx context.Context, where string, args ...any) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []SessionRecord
	for rows.Next() {
		sr, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, *sr)
	}
	return res, rows.Err()
}

func (s *sessionsStore) ListActive(ctx context.Context) ([]SessionRecord, error) {
	return s.listWhere(ctx, `WHERE revoked=0 AND expires_at > ? ORDER BY last_seen_at DESC`, time.Now().UTC())
}

func (s *sessionsStore) ListByUser(ctx context.Context, userID string) ([]SessionRecord, error) {
	return s.listWhere(ctx, `WHERE user_id=? AND revoked=0 AND expires_at > ? ORDER BY last_seen_at DESC`, userID, time.Now().UTC())
}

func (s *sessionsStore) Revoke(ctx context.Context, id string, by string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET revoked=1, revoked_at=?, revoked_by=? WHERE id=?`, now, by, id)
	return err
}

func (s *sessionsStore) RevokeAllForUser(ctx context.Context, userID string, by string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET revoked=1, revoked_at=?, revoked_by=? WHERE user_id=? AND revoked=0`, now, by, userID)
	return err
}

func (s *sessionsStore) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, tokenExpiresAt, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET access_token=?, refresh_token=?, token_expires_at=?, refresh_error='', last_refresh_at=? WHERE id=? AND revoked=0`,
		accessToken, refreshToken, tokenExpiresAt.UTC(), at.UTC(), id)
	return err
}

func (s *sessionsStore) SetRefreshError(ctx context.Context, id, flag string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET refresh_error=?, last_refresh_at=? WHERE id=? AND revoked=0`, flag, at.UTC(), id)
	return err
}

func (s *sessionsStore) Touch(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_seen_at=? WHERE id=? AND revoked=0`, now.UTC(), id)
	return err
}

func (s *sessionsStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions WHERE revoked=0 AND expires_at > ?`, time.Now().UTC()).Scan(&n)
	return n, err
}

func (s *sessionsStore) PurgeDead(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE revoked=1 OR expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
