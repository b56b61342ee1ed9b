package incidents

import (
	"context"
	"errors"
	"strings"
	"time"

	"sentinel-console/core/store"
)

var (
	ErrTitleRequired   = errors.New("incident title is required")
	ErrInvalidSeverity = errors.New("invalid severity")
	ErrNotFound        = errors.New("incident not found")
)

var severities = map[string]struct{}{
	"low": {}, "medium": {}, "high": {}, "critical": {},
}

// Service wraps the incident store with input validation and audit
// logging. Permission checks stay in the HTTP layer.
type Service struct {
	store store.IncidentStore
	audit store.AuditStore
}

func NewService(st store.IncidentStore, audit store.AuditStore) *Service {
	return &Service{store: st, audit: audit}
}

func (s *Service) Create(ctx context.Context, title, severity, by string) (*store.Incident, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	severity = strings.ToLower(strings.TrimSpace(severity))
	if severity == "" {
		severity = "low"
	}
	if _, ok := severities[severity]; !ok {
		return nil, ErrInvalidSeverity
	}
	inc := &store.Incident{Title: title, Severity: severity, CreatedBy: by, CreatedAt: time.Now().UTC()}
	id, err := s.store.Create(ctx, inc)
	if err != nil {
		return nil, err
	}
	inc.ID = id
	inc.Status = "open"
	if s.audit != nil {
		_ = s.audit.Log(ctx, by, "incidents.create", inc.Title)
	}
	return inc, nil
}

func (s *Service) List(ctx context.Context, status string, limit int) ([]store.Incident, error) {
	return s.store.List(ctx, strings.ToLower(strings.TrimSpace(status)), limit)
}

func (s *Service) Close(ctx context.Context, id int64, by string) (*store.Incident, error) {
	inc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, ErrNotFound
	}
	if err := s.store.Close(ctx, id, by, time.Now()); err != nil {
		return nil, err
	}
	if s.audit != nil {
		_ = s.audit.Log(ctx, by, "incidents.close", inc.Title)
	}
	return s.store.Get(ctx, id)
}

func (s *Service) CountOpen(ctx context.Context) (int, error) {
	return s.store.CountOpen(ctx)
}
