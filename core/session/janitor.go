package session

import (
	"context"
	"time"

	"sentinel-console/config"
	"sentinel-console/core/store"
	"sentinel-console/core/utils"

	"github.com/robfig/cron/v3"
)

// Janitor deletes revoked and max-age-expired session rows on a cron
// schedule.
type Janitor struct {
	cfg    config.CleanupConfig
	store  store.SessionStore
	logger *utils.Logger
	cron   *cron.Cron
}

func NewJanitor(cfg config.CleanupConfig, st store.SessionStore, logger *utils.Logger) *Janitor {
	return &Janitor{cfg: cfg, store: st, logger: logger}
}

func (j *Janitor) Start() error {
	if j == nil || j.store == nil || !j.cfg.Enabled {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(j.cfg.Schedule, func() {
		j.RunOnce(context.Background(), time.Now().UTC())
	}); err != nil {
		return err
	}
	j.cron = c
	c.Start()
	return nil
}

func (j *Janitor) Stop() {
	if j == nil || j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

func (j *Janitor) RunOnce(ctx context.Context, now time.Time) {
	n, err := j.store.PurgeDead(ctx, now)
	if err != nil {
		if j.logger != nil {
			j.logger.Errorf("session cleanup: %v", err)
		}
		return
	}
	if n > 0 && j.logger != nil {
		j.logger.Printf("session cleanup removed %d rows", n)
	}
}
