package store

import (
	"context"
	"database/sql"
	"time"
)

type AuditStore interface {
	Log(ctx context.Context, username, action, details string) error
	List(ctx context.Context) ([]AuditRecord, error)
	ListFiltered(ctx context.Context, since time.Time, limit int) ([]AuditRecord, error)
}

type AuditRecord struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// Audit actions recorded by the auth and authorization paths.
const (
	AuditLoginSuccess  = "auth.login"
	AuditLoginFailure  = "auth.login_failed"
	AuditLogout        = "auth.logout"
	AuditRefreshFailed = "auth.refresh_failed"
	AuditAccessDenied  = "authz.denied"
	AuditSessionRevoke = "sessions.revoke"
)

type auditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) AuditStore {
	return &auditStore{db: db}
}

func (s *auditStore) Log(ctx context.Context, username, action, details string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO audit_log(username, action, details, created_at) VALUES(?,?,?,?)`, username, action, details, time.Now().UTC())
	return err
}

func (s *auditStore) List(ctx context.Context) ([]AuditRecord, error) {
	return s.query(ctx, `SELECT id, username, action, details, created_at FROM audit_log ORDER BY created_at DESC LIMIT 100`)
}

func (s *auditStore) ListFiltered(ctx context.Context, since time.Time, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.query(ctx, `SELECT id, username, action, details, created_at FROM audit_log WHERE created_at>=? ORDER BY created_at DESC LIMIT ?`, since, limit)
}

func (s *auditStore) query(ctx context.Context, q string, args ...any) ([]AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AuditRecord
	for rows.Next() {
		var r AuditRecord
		if err := rows.Scan(&r.ID, &r.Username, &r.Action, &r.Details, &r.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}
