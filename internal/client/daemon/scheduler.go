package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmitrijs2005/storykeeper/internal/client/connectivity"
)

const (
	timeFormat     = time.RFC3339
	refreshTimeout = 2 * time.Minute
	purgeTimeout   = time.Minute
)

// scheduler runs the periodic feed refresh and runtime cache purge.
type scheduler struct {
	d    *Daemon
	ctx  context.Context
	cron *cron.Cron
}

func newScheduler(d *Daemon) *scheduler {
	return &scheduler{d: d, cron: cron.New(cron.WithLocation(time.UTC))}
}

func (s *scheduler) start(ctx context.Context) error {
	s.ctx = ctx
	cfg := s.d.cfg
	if cfg.RefreshSpec != "" {
		if _, err := s.cron.AddFunc(cfg.RefreshSpec, s.refresh); err != nil {
			return fmt.Errorf("refresh schedule %q: %w", cfg.RefreshSpec, err)
		}
	}
	if cfg.PurgeSpec != "" && cfg.PurgeTTL > 0 {
		if _, err := s.cron.AddFunc(cfg.PurgeSpec, s.purge); err != nil {
			return fmt.Errorf("purge schedule %q: %w", cfg.PurgeSpec, err)
		}
	}
	s.cron.Start()
	return nil
}

func (s *scheduler) stop() {
	<-s.cron.Stop().Done()
}

func (s *scheduler) refresh() {
	ctx, cancel := context.WithTimeout(s.ctx, refreshTimeout)
	defer cancel()

	if s.d.deps.Watcher.Mode() == connectivity.ModeOffline {
		return
	}
	n, err := s.d.deps.Stories.Refresh(ctx)
	if err != nil {
		s.d.log.Info(ctx, "scheduled refresh skipped", "error", err)
		return
	}
	s.d.log.Debug(ctx, "stories refreshed", "count", n)
	_, _ = s.d.syncNow(ctx)
}

func (s *scheduler) purge() {
	ctx, cancel := context.WithTimeout(s.ctx, purgeTimeout)
	defer cancel()

	if _, err := s.d.deps.Cache.Purge(ctx, s.d.cfg.PurgeTTL); err != nil {
		s.d.log.Warn(ctx, "scheduled purge failed", "error", err)
	}
}
