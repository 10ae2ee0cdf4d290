package daemon

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmitrijs2005/storykeeper/internal/client/config"
	"github.com/dmitrijs2005/storykeeper/internal/client/connectivity"
	"github.com/dmitrijs2005/storykeeper/internal/client/migrations"
	"github.com/dmitrijs2005/storykeeper/internal/client/models"
	"github.com/dmitrijs2005/storykeeper/internal/client/services"
	"github.com/dmitrijs2005/storykeeper/internal/client/swcache"
	"github.com/dmitrijs2005/storykeeper/internal/common"
	"github.com/dmitrijs2005/storykeeper/internal/logging"
	_ "modernc.org/sqlite"
)

type fakeOutbox struct {
	entries []models.OutboxEntry
	err     error
}

func (f *fakeOutbox) OutboxEntries(context.Context) ([]models.OutboxEntry, error) {
	return f.entries, f.err
}

func (f *fakeOutbox) OutboxCount(context.Context) (int, error) { return len(f.entries), f.err }

type fakeSyncer struct {
	report services.SyncReport
	err    error
	calls  atomic.Int32

	// When gate is set, SyncOutbox signals started and blocks until gate
	// is closed.
	gate     chan struct{}
	started  chan struct{}
	finished atomic.Bool
}

func (f *fakeSyncer) SyncOutbox(context.Context) (services.SyncReport, error) {
	f.calls.Add(1)
	if f.gate != nil {
		f.started <- struct{}{}
		<-f.gate
	}
	f.finished.Store(true)
	return f.report, f.err
}

type fakeStories struct {
	services.StoryService
	listing   services.Listing
	found     []models.Story
	refreshed atomic.Int32
}

func (f *fakeStories) List(context.Context) services.Listing { return f.listing }

func (f *fakeStories) Search(context.Context, string) ([]models.Story, error) {
	return f.found, nil
}

func (f *fakeStories) Refresh(context.Context) (int, error) {
	f.refreshed.Add(1)
	return 0, nil
}

type fakeWatcher struct {
	mode      connectivity.Mode
	hooks     []func(context.Context)
	fireOnRun bool
}

func (f *fakeWatcher) Mode() connectivity.Mode { return f.mode }

func (f *fakeWatcher) OnOnline(fn func(ctx context.Context)) { f.hooks = append(f.hooks, fn) }

func (f *fakeWatcher) Run(ctx context.Context) {
	if f.fireOnRun {
		for _, h := range f.hooks {
			h(ctx)
		}
	}
	<-ctx.Done()
}

type offlineNet struct{ offline atomic.Bool }

func (o *offlineNet) RoundTrip(r *http.Request) (*http.Response, error) {
	if o.offline.Load() {
		return nil, errors.New("network down")
	}
	return http.DefaultTransport.RoundTrip(r)
}

type fixture struct {
	d       *Daemon
	origin  *httptest.Server
	net     *offlineNet
	outbox  *fakeOutbox
	syncer  *fakeSyncer
	stories *fakeStories
	watcher *fakeWatcher
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db))
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/", "/index.html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, "<html>shell</html>")
		case "/favicon.png", "/manifest.json":
			_, _ = io.WriteString(w, "asset")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(origin.Close)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.WebOrigin = origin.URL
	cfg.HealthAddr = ""

	nw := &offlineNet{}
	cache, err := swcache.New(nw, setupDB(t), cfg.CacheConfig(), logging.Nop())
	require.NoError(t, err)

	f := &fixture{
		origin:  origin,
		net:     nw,
		outbox:  &fakeOutbox{},
		syncer:  &fakeSyncer{},
		stories: &fakeStories{},
		watcher: &fakeWatcher{mode: connectivity.ModeOnline},
	}
	f.d, err = New(cfg, Deps{
		Outbox:  f.outbox,
		Stories: f.stories,
		Syncer:  f.syncer,
		Cache:   cache,
		Watcher: f.watcher,
	}, logging.Nop())
	require.NoError(t, err)
	return f
}

func do(t *testing.T, h http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_InvalidOrigin(t *testing.T) {
	cfg := &config.Config{WebOrigin: "not a url"}
	_, err := New(cfg, Deps{}, nil)
	require.Error(t, err)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	f.outbox.entries = []models.OutboxEntry{{Key: 1}, {Key: 2}}

	rec := do(t, f.d.Router(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, healthResponse{Status: "ok", Mode: "online", OutboxPending: 2}, got)

	f.outbox.err = errors.New("locked")
	rec = do(t, f.d.Router(), http.MethodGet, "/healthz", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "degraded", got.Status)
}

func TestOutboxEndpoint(t *testing.T) {
	f := newFixture(t)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.outbox.entries = []models.OutboxEntry{
		{Key: 4, Payload: models.OutboxPayload{ClientRef: "r4", Description: "hi", PhotoBlob: "abc", CreatedAt: created}},
		{Key: 9, Payload: models.OutboxPayload{Description: "retry"}, Attempts: 2, LastError: "503",
			NextAttemptAt: created.Add(time.Minute)},
	}

	rec := do(t, f.d.Router(), http.MethodGet, "/_offline/outbox", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Entries  []outboxItem `json:"entries"`
		Degraded bool         `json:"degraded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Entries, 2)
	assert.Equal(t, int64(4), got.Entries[0].Key)
	assert.True(t, got.Entries[0].HasPhoto)
	assert.Equal(t, "2026-03-01T10:00:00Z", got.Entries[0].CreatedAt)
	assert.Equal(t, "2026-03-01T10:01:00Z", got.Entries[1].NextAttemptAt)
	assert.False(t, got.Degraded)
}

func TestSyncEndpoint(t *testing.T) {
	f := newFixture(t)
	f.syncer.report = services.SyncReport{Sent: 2, Failed: 1}

	rec := do(t, f.d.Router(), http.MethodPost, "/_offline/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"skipped":false,"sent":2,"failed":1,"deferred":0,"parked":0}`, rec.Body.String())

	f.syncer.err = context.Canceled
	rec = do(t, f.d.Router(), http.MethodPost, "/_offline/sync", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStoriesEndpoint(t *testing.T) {
	f := newFixture(t)
	f.stories.listing = services.Listing{Stories: []models.Story{{ID: "s1"}}, FromCache: true}
	f.stories.found = []models.Story{{ID: "s2"}}

	rec := do(t, f.d.Router(), http.MethodGet, "/_offline/stories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("X-Storykeeper-From-Cache"))
	assert.Contains(t, rec.Body.String(), `"id":"s1"`)

	rec = do(t, f.d.Router(), http.MethodGet, "/_offline/stories?q=beach", nil)
	assert.Contains(t, rec.Body.String(), `"id":"s2"`)

	f.stories.listing = services.Listing{}
	rec = do(t, f.d.Router(), http.MethodGet, "/_offline/stories", nil)
	assert.JSONEq(t, `{"error":false,"listStory":[]}`, rec.Body.String())
}

func TestProxy_ServesShellWhenOffline(t *testing.T) {
	f := newFixture(t)
	f.d.prepareCache(context.Background())
	h := f.d.Router()

	rec := do(t, h, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>shell</html>", rec.Body.String())

	f.net.offline.Store(true)
	rec = do(t, h, http.MethodGet, "/stories/7", map[string]string{"Sec-Fetch-Mode": "navigate"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>shell</html>", rec.Body.String())
	assert.Equal(t, common.CacheStatusHit, rec.Header().Get(common.CacheStatusHeaderName))

	rec = do(t, h, http.MethodGet, "/app.js", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "offline and not cached"))
}

func TestScheduler_RefreshAndPurge(t *testing.T) {
	f := newFixture(t)
	f.d.sched.ctx = context.Background()

	f.d.sched.refresh()
	assert.Equal(t, int32(1), f.stories.refreshed.Load())
	assert.Equal(t, int32(1), f.syncer.calls.Load())

	f.watcher.mode = connectivity.ModeOffline
	f.d.sched.refresh()
	assert.Equal(t, int32(1), f.stories.refreshed.Load(), "refresh is skipped offline")

	f.d.sched.purge()
}

func TestScheduler_BadSpec(t *testing.T) {
	f := newFixture(t)
	f.d.cfg.RefreshSpec = "every now and then"
	require.Error(t, f.d.sched.start(context.Background()))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	f := newFixture(t)
	f.d.cfg.ListenAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.d.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("daemon exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after context cancel")
	}
	assert.Len(t, f.watcher.hooks, 1)
}

func TestRun_WaitsForOnlineSync(t *testing.T) {
	f := newFixture(t)
	f.d.cfg.ListenAddr = "127.0.0.1:0"
	f.watcher.fireOnRun = true
	f.syncer.started = make(chan struct{}, 1)
	f.syncer.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.d.Run(ctx) }()

	select {
	case <-f.syncer.started:
	case <-time.After(5 * time.Second):
		t.Fatal("online hook did not start a sync")
	}

	cancel()
	select {
	case <-done:
		t.Fatal("Run returned while the sync it started was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(f.syncer.gate)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.True(t, f.syncer.finished.Load())
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	f := newFixture(t)
	f.d.cfg.ListenAddr = "127.0.0.1:99999"
	require.Error(t, f.d.Run(context.Background()))
}

func TestHealthServer_ReportsOutboxStatus(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	hs := newHealthServer(addr, logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- hs.Run(ctx) }()

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	hc := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		var st healthpb.HealthCheckResponse_ServingStatus
		require.Eventually(t, func() bool {
			resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: OutboxService})
			if err != nil {
				return false
			}
			st = resp.GetStatus()
			return true
		}, 3*time.Second, 20*time.Millisecond)
		return st
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
	hs.setOutboxServing(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())

	cancel()
	require.NoError(t, <-done)
}
