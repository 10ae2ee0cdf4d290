package swcache

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrijs2005/storykeeper/internal/client/models"
	"github.com/dmitrijs2005/storykeeper/internal/client/repositories/responses"
	"github.com/dmitrijs2005/storykeeper/internal/common"
	"github.com/dmitrijs2005/storykeeper/internal/logging"
)

// ErrNoMatch is returned by Match when no cache holds the request.
var ErrNoMatch = errors.New("no cached response")

var tracer = otel.Tracer("github.com/dmitrijs2005/storykeeper/internal/client/swcache")

type strategy string

const (
	networkFirst    strategy = "network-first"
	navigationShell strategy = "navigation"
	cacheFirst      strategy = "cache-first"
)

// Transport is an http.RoundTripper that serves requests from the local
// response cache according to the package strategies.
type Transport struct {
	next http.RoundTripper
	db   *sql.DB
	repo responses.Repository
	cfg  *resolved
	log  logging.Logger
	now  func() time.Time
}

// New wraps next (http.DefaultTransport when nil) with the response cache
// stored in db.
func New(next http.RoundTripper, db *sql.DB, cfg Config, log logging.Logger) (*Transport, error) {
	r, err := cfg.resolve()
	if err != nil {
		return nil, err
	}
	if next == nil {
		next = http.DefaultTransport
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Transport{
		next: next,
		db:   db,
		repo: responses.NewSQLiteRepository(db),
		cfg:  r,
		log:  log.With("component", "swcache"),
		now:  time.Now,
	}, nil
}

// Client returns an *http.Client using t as its transport.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	s := t.classify(req)

	ctx, span := tracer.Start(req.Context(), "swcache."+string(s),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", cacheKey(req.URL)),
		))
	defer span.End()

	var (
		resp *http.Response
		err  error
	)
	switch s {
	case networkFirst:
		resp, err = t.networkFirst(ctx, req)
	case navigationShell:
		resp, err = t.navigation(ctx, req)
	default:
		resp, err = t.cacheFirst(ctx, req)
	}

	if resp != nil {
		span.SetAttributes(attribute.Bool("swcache.hit", resp.Header.Get(common.CacheStatusHeaderName) == common.CacheStatusHit))
	}
	return resp, err
}

func (t *Transport) classify(req *http.Request) strategy {
	if t.cfg.isAPI(req.URL) {
		return networkFirst
	}
	if isNavigation(req) {
		return navigationShell
	}
	return cacheFirst
}

func isNavigation(req *http.Request) bool {
	if strings.EqualFold(req.Header.Get("Sec-Fetch-Mode"), "navigate") {
		return true
	}
	if strings.EqualFold(req.Header.Get("Sec-Fetch-Dest"), "document") {
		return true
	}
	if req.Method != http.MethodGet {
		return false
	}
	return prefersHTML(req.Header.Get("Accept"))
}

// prefersHTML reports whether text/html is the first media type listed.
func prefersHTML(accept string) bool {
	first, _, _ := strings.Cut(accept, ",")
	mt, _, _ := strings.Cut(first, ";")
	return strings.EqualFold(strings.TrimSpace(mt), "text/html")
}

// okToCache mirrors what a browser cache accepts: complete 2xx answers to
// GET requests over http(s).
func okToCache(req *http.Request, resp *http.Response) bool {
	if req.Method != http.MethodGet {
		return false
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return false
	}
	if resp.StatusCode == http.StatusPartialContent {
		return false
	}
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (t *Transport) networkFirst(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := t.fetch(ctx, req, t.cfg.RuntimeCache)
	if err == nil {
		return resp, nil
	}

	if cached, cerr := t.Match(ctx, req); cerr == nil {
		t.log.Debug(ctx, "network failed, serving cached response", "url", cacheKey(req.URL), "error", err)
		return cached, nil
	}
	return nil, err
}

func (t *Transport) navigation(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cached, err := t.Match(ctx, req); err == nil {
		return cached, nil
	}

	resp, err := t.next.RoundTrip(req)
	if err == nil {
		return resp, nil
	}

	if t.cfg.shellURL != "" {
		shell, serr := t.lookup(ctx, req, http.MethodGet, t.cfg.shellURL)
		if serr == nil {
			t.log.Debug(ctx, "navigation failed, serving app shell", "url", cacheKey(req.URL), "error", err)
			return shell, nil
		}
	}
	return nil, err
}

func (t *Transport) cacheFirst(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cached, err := t.Match(ctx, req); err == nil {
		return cached, nil
	}
	return t.fetch(ctx, req, t.cfg.RuntimeCache)
}

// fetch goes to the network and, when the answer is cacheable, stores a copy
// in cacheName. Storage failures are logged and otherwise ignored.
func (t *Transport) fetch(ctx context.Context, req *http.Request, cacheName string) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if !okToCache(req, resp) {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))

	entry := &models.CachedResponse{
		CacheName: cacheName,
		Method:    req.Method,
		URL:       cacheKey(req.URL),
		Status:    resp.StatusCode,
		Header:    storableHeader(resp.Header),
		Body:      body,
		StoredAt:  t.now(),
	}
	if err := t.repo.Put(ctx, entry); err != nil {
		t.log.Warn(ctx, "failed to store response", "cache", cacheName, "url", entry.URL, "error", err)
	}
	return resp, nil
}

// Match looks req up in the shell cache, then the runtime cache.
func (t *Transport) Match(ctx context.Context, req *http.Request) (*http.Response, error) {
	return t.lookup(ctx, req, req.Method, cacheKey(req.URL))
}

func (t *Transport) lookup(ctx context.Context, req *http.Request, method, key string) (*http.Response, error) {
	c, err := t.repo.Match(ctx, []string{t.cfg.ShellCache, t.cfg.RuntimeCache}, method, key)
	if err != nil {
		t.log.Warn(ctx, "cache lookup failed", "url", key, "error", err)
		return nil, ErrNoMatch
	}
	if c == nil {
		return nil, ErrNoMatch
	}
	return toResponse(req, c), nil
}

func toResponse(req *http.Request, c *models.CachedResponse) *http.Response {
	h := c.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set(common.CacheStatusHeaderName, common.CacheStatusHit)
	h.Set("Content-Length", strconv.Itoa(len(c.Body)))

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", c.Status, http.StatusText(c.Status)),
		StatusCode:    c.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(c.Body)),
		ContentLength: int64(len(c.Body)),
		Request:       req,
	}
}

// hop-by-hop and per-connection headers are not replayed from cache.
var unstoredHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Connection", "Transfer-Encoding",
	"Upgrade", "Set-Cookie", "Content-Length", common.CacheStatusHeaderName,
}

func storableHeader(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		return http.Header{}
	}
	for _, k := range unstoredHeaders {
		out.Del(k)
	}
	return out
}
