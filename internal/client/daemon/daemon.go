// Package daemon runs storyd: a local reverse proxy in front of the web
// application whose transport is the response cache, a small control API for
// the outbox, scheduled refresh and purge jobs, and a gRPC health endpoint.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/client/app"
	"github.com/dmitrijs2005/storykeeper/internal/client/config"
	"github.com/dmitrijs2005/storykeeper/internal/client/connectivity"
	"github.com/dmitrijs2005/storykeeper/internal/client/models"
	"github.com/dmitrijs2005/storykeeper/internal/client/push"
	"github.com/dmitrijs2005/storykeeper/internal/client/services"
	"github.com/dmitrijs2005/storykeeper/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// OutboxReader lists what is waiting for upload.
type OutboxReader interface {
	OutboxEntries(ctx context.Context) ([]models.OutboxEntry, error)
	OutboxCount(ctx context.Context) (int, error)
}

type Syncer interface {
	SyncOutbox(ctx context.Context) (services.SyncReport, error)
}

// Cache is the response cache as seen by the daemon.
type Cache interface {
	http.RoundTripper
	Install(ctx context.Context) error
	Activate(ctx context.Context) ([]string, error)
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
}

type Watcher interface {
	Mode() connectivity.Mode
	OnOnline(fn func(ctx context.Context))
	Run(ctx context.Context)
}

// PushHandler turns a push message into a shown notification.
type PushHandler interface {
	HandlePush(ctx context.Context, data []byte) (push.Notification, error)
}

// Subscriptions manages this device's push registration.
type Subscriptions interface {
	ApplicationServerKey(ctx context.Context) ([]byte, error)
	Subscribe(ctx context.Context, sub models.PushSubscription) bool
	Unsubscribe(ctx context.Context) bool
	Current(ctx context.Context) (models.PushSubscription, bool)
}

// Deps are the components the daemon drives. Push and Subscriptions are
// optional; their routes are not mounted when nil.
type Deps struct {
	Outbox        OutboxReader
	Stories       services.StoryService
	Syncer        Syncer
	Cache         Cache
	Watcher       Watcher
	Push          PushHandler
	Subscriptions Subscriptions
}

// FromComponents adapts the shared client wiring.
func FromComponents(c *app.Components) Deps {
	return Deps{
		Outbox:        c.Store,
		Stories:       c.Stories,
		Syncer:        c.Syncer,
		Cache:         c.Cache,
		Watcher:       c.Watcher,
		Push:          c.Push,
		Subscriptions: c.Subscriptions,
	}
}

type Daemon struct {
	cfg    *config.Config
	deps   Deps
	log    logging.Logger
	origin *url.URL
	health *healthServer
	sched  *scheduler
}

func New(cfg *config.Config, deps Deps, log logging.Logger) (*Daemon, error) {
	if log == nil {
		log = logging.Nop()
	}
	origin, err := url.Parse(cfg.WebOrigin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid web origin %q", cfg.WebOrigin)
	}

	d := &Daemon{
		cfg:    cfg,
		deps:   deps,
		log:    log.With("module", "storyd"),
		origin: origin,
	}
	d.health = newHealthServer(cfg.HealthAddr, d.log)
	d.sched = newScheduler(d)
	return d, nil
}

// syncNow runs one outbox pass and publishes the outcome to the health
// endpoint.
func (d *Daemon) syncNow(ctx context.Context) (services.SyncReport, error) {
	report, err := d.deps.Syncer.SyncOutbox(ctx)
	if err != nil {
		d.log.Warn(ctx, "outbox sync interrupted", "error", err)
		return report, err
	}
	d.health.setOutboxServing(!report.Skipped)
	return report, nil
}

func (d *Daemon) prepareCache(ctx context.Context) {
	if err := d.deps.Cache.Install(ctx); err != nil {
		d.log.Warn(ctx, "app shell not installed, will be cached on first visit", "error", err)
		return
	}
	if _, err := d.deps.Cache.Activate(ctx); err != nil {
		d.log.Warn(ctx, "failed to drop old caches", "error", err)
	}
}

// Run serves until ctx is done or a listener fails.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.log.Info(ctx, "Starting storyd...", "listen", d.cfg.ListenAddr, "origin", d.origin.String())

	d.prepareCache(ctx)

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		runErr  error

		hookMu  sync.Mutex
		closing bool
	)
	fail := func(err error) {
		errOnce.Do(func() { runErr = err })
		cancel()
	}

	if err := d.sched.start(ctx); err != nil {
		return err
	}
	defer d.sched.stop()

	ln, err := net.Listen("tcp", d.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", d.cfg.ListenAddr, err)
	}
	srv := &http.Server{Handler: d.Router(), ReadHeaderTimeout: 10 * time.Second}

	// Syncs started by the watcher are waited for before Run returns.
	d.deps.Watcher.OnOnline(func(context.Context) {
		hookMu.Lock()
		defer hookMu.Unlock()
		if closing {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.syncNow(ctx)
		}()
	})

	wg.Add(3)
	go func() {
		defer wg.Done()
		d.deps.Watcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := d.health.Run(ctx); err != nil {
			d.log.Error(ctx, "health server failed", "error", err)
			fail(err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error(ctx, "http server failed", "error", err)
			fail(err)
		}
	}()

	<-ctx.Done()
	d.log.Info(ctx, "Stopping storyd...")

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		d.log.Warn(shutdownCtx, "http shutdown", "error", err)
	}

	hookMu.Lock()
	closing = true
	hookMu.Unlock()
	wg.Wait()
	return runErr
}
