package session

import (
	"context"
	"sync"
	"time"

	"sentinel-console/config"
	"sentinel-console/core/store"
	"sentinel-console/core/utils"
)

// RefreshLoop proactively rotates tokens for active sessions so a busy
// console never hits the synchronous refresh path. It ticks at a
// fraction of the session lifetime and enforces a per-session cooldown
// between attempts; the manager's singleflight group guards against an
// attempt overlapping an in-flight one.
type RefreshLoop struct {
	cfg     config.RefreshConfig
	store   store.SessionStore
	manager *Manager
	logger  *utils.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

func NewRefreshLoop(cfg config.RefreshConfig, st store.SessionStore, manager *Manager, logger *utils.Logger) *RefreshLoop {
	return &RefreshLoop{
		cfg:     cfg,
		store:   st,
		manager: manager,
		logger:  logger,
	}
}

func (l *RefreshLoop) interval() time.Duration {
	frac := l.cfg.TickFraction
	if frac <= 0 || frac >= 1 {
		frac = 0.75
	}
	iv := time.Duration(float64(l.manager.TTL()) * frac)
	if iv < time.Minute {
		iv = time.Minute
	}
	return iv
}

func (l *RefreshLoop) cooldown() time.Duration {
	min := l.cfg.CooldownMinutes
	if min <= 0 {
		min = 30
	}
	return time.Duration(min) * time.Minute
}

func (l *RefreshLoop) Start() {
	l.StartWithContext(context.Background())
}

func (l *RefreshLoop) StartWithContext(ctx context.Context) {
	if l == nil || l.store == nil || l.manager == nil || !l.cfg.Enabled {
		return
	}
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.running = true
	l.wg.Add(1)
	l.mu.Unlock()

	ticker := time.NewTicker(l.interval())
	go func() {
		defer l.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = l.RunOnce(runCtx, time.Now().UTC())
			case <-runCtx.Done():
				return
			}
		}
	}()
}

func (l *RefreshLoop) Stop() {
	_ = l.StopWithContext(context.Background())
}

func (l *RefreshLoop) StopWithContext(ctx context.Context) error {
	if l == nil || !l.cfg.Enabled {
		return nil
	}
	l.mu.Lock()
	if l.cancel == nil || !l.running {
		l.mu.Unlock()
		return nil
	}
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()
	cancel()
	waitDone := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce attempts one refresh sweep over the active sessions. A
// session is skipped while its last attempt, successful or not, is
// younger than the cooldown.
func (l *RefreshLoop) RunOnce(ctx context.Context, now time.Time) error {
	if l == nil || l.store == nil || l.manager == nil || !l.cfg.Enabled {
		return nil
	}
	sessions, err := l.store.ListActive(ctx)
	if err != nil {
		if l.logger != nil {
			l.logger.Errorf("refresh loop list: %v", err)
		}
		return err
	}
	cooldown := l.cooldown()
	for _, sess := range sessions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if sess.LastRefreshAt != nil && now.Sub(*sess.LastRefreshAt) < cooldown {
			continue
		}
		if _, err := l.manager.refreshSession(ctx, sess.ID, l.interval()); err != nil {
			if l.logger != nil {
				l.logger.Errorf("refresh loop session %s: %v", sess.ID, err)
			}
		}
	}
	return nil
}
