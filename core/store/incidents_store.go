package store

import (
	"context"
	"database/sql"
	"time"
)

type IncidentStore interface {
	Create(ctx context.Context, inc *Incident) (int64, error)
	List(ctx context.Context, status string, limit int) ([]Incident, error)
	Get(ctx context.Context, id int64) (*Incident, error)
	Close(ctx context.Context, id int64, by string, at time.Time) error
	CountOpen(ctx context.Context) (int, error)
}

type incidentsStore struct {
	db *sql.DB
}

func NewIncidentsStore(db *sql.DB) IncidentStore {
	return &incidentsStore{db: db}
}

func (s *incidentsStore) Create(ctx context.Context, inc *Incident) (int64, error) {
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = time.Now().UTC()
	}
	if inc.Status == "" {
		inc.Status = "open"
	}
	if inc.Severity == "" {
		inc.Severity = "low"
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO incidents(title, severity, status, created_by, created_at) VALUES(?,?,?,?,?)`,
		inc.Title, inc.Severity, inc.Status, inc.CreatedBy, inc.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *incidentsStore) List(ctx context.Context, status string, limit int) ([]Incident, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT id, title, severity, status, created_by, created_at, closed_at, closed_by FROM incidents`
	args := []any{}
	if status != "" {
		q += ` WHERE status=?`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Incident
	for rows.Next() {
		inc, err := scanIncident(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, *inc)
	}
	return res, rows.Err()
}

func (s *incidentsStore) Get(ctx context.Context, id int64) (*Incident, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, severity, status, created_by, created_at, closed_at, closed_by FROM incidents WHERE id=?`, id)
	inc, err := scanIncident(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return inc, nil
}

func (s *incidentsStore) Close(ctx context.Context, id int64, by string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE incidents SET status='closed', closed_at=?, closed_by=? WHERE id=? AND status<>'closed'`, at.UTC(), by, id)
	return err
}

func (s *incidentsStore) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM incidents WHERE status='open'`).Scan(&n)
	return n, err
}

func scanIncident(scan func(dest ...any) error) (*Incident, error) {
	var inc Incident
	var closedAt sql.NullTime
	if err := scan(&inc.ID, &inc.Title, &inc.Severity, &inc.Status, &inc.CreatedBy, &inc.CreatedAt, &closedAt, &inc.ClosedBy); err != nil {
		return nil, err
	}
	if closedAt.Valid {
		t := closedAt.Time
		inc.ClosedAt = &t
	}
	return &inc, nil
}
