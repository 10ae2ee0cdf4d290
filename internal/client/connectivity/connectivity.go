// Package connectivity tracks whether the story API is reachable and
// notifies listeners when the client comes back online.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/logging"
)

type Mode string

const (
	ModeUnknown Mode = ""
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// Checker answers the "are we online" question.
type Checker interface {
	Online(ctx context.Context) bool
}

// Static is a Checker with a fixed answer, for tests and forced modes.
type Static bool

func (s Static) Online(context.Context) bool { return bool(s) }

// PingFunc returns nil when the remote side answered.
type PingFunc func(ctx context.Context) error

const (
	DefaultInterval = 10 * time.Second
	DefaultTimeout  = 3 * time.Second
)

// Watcher pings the API periodically and keeps the current Mode.
type Watcher struct {
	ping     PingFunc
	interval time.Duration
	timeout  time.Duration
	log      logging.Logger

	mu    sync.RWMutex
	mode  Mode
	hooks []func(ctx context.Context)
}

func NewWatcher(ping PingFunc, interval, timeout time.Duration, log logging.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Watcher{
		ping:     ping,
		interval: interval,
		timeout:  timeout,
		log:      log.With("component", "connectivity"),
	}
}

// OnOnline registers fn to run on every transition into ModeOnline,
// including the first successful ping. Hooks run synchronously in
// registration order and should hand long work off to a goroutine.
func (w *Watcher) OnOnline(fn func(ctx context.Context)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks = append(w.hooks, fn)
}

func (w *Watcher) Mode() Mode {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.mode
}

// Online reports the last known state, pinging once if nothing is known yet.
func (w *Watcher) Online(ctx context.Context) bool {
	if m := w.Mode(); m != ModeUnknown {
		return m == ModeOnline
	}
	return w.Check(ctx) == ModeOnline
}

// Check pings once, updates the mode and fires hooks on an
// offline-to-online transition.
func (w *Watcher) Check(ctx context.Context) Mode {
	pctx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.ping(pctx)
	cancel()

	next := ModeOnline
	if err != nil {
		next = ModeOffline
	}

	w.mu.Lock()
	prev := w.mode
	w.mode = next
	hooks := append([]func(context.Context){}, w.hooks...)
	w.mu.Unlock()

	if prev == next {
		return next
	}

	if next == ModeOnline {
		w.log.Info(ctx, "switched to online mode", "previous", string(prev))
		for _, h := range hooks {
			h(ctx)
		}
	} else {
		w.log.Warn(ctx, "switched to offline mode", "error", err)
	}
	return next
}

// Run checks immediately and then every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.Check(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}
