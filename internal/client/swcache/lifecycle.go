package swcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dmitrijs2005/storykeeper/internal/client/models"
	"github.com/dmitrijs2005/storykeeper/internal/client/repositories/responses"
	"github.com/dmitrijs2005/storykeeper/internal/dbx"
)

// Install fetches every precache URL from the network and stores them in the
// shell cache. Nothing is stored unless every precache fetch succeeds.
// Assets discovered in the shell document are stored on a best-effort basis.
func (t *Transport) Install(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "swcache.install")
	defer span.End()

	entries := make([]*models.CachedResponse, 0, len(t.cfg.precache))
	for _, u := range t.cfg.precache {
		e, err := t.download(ctx, u)
		if err != nil {
			return fmt.Errorf("install: %w", err)
		}
		entries = append(entries, e)
	}

	if t.cfg.DiscoverAssets {
		entries = append(entries, t.discover(ctx, entries)...)
	}

	err := dbx.WithTx(ctx, t.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := responses.NewSQLiteRepository(tx)
		for _, e := range entries {
			if err := repo.Put(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}

	t.log.Info(ctx, "app shell installed", "cache", t.cfg.ShellCache, "entries", len(entries))
	return nil
}

func (t *Transport) download(ctx context.Context, rawURL string) (*models.CachedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if !okToCache(req, resp) {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	return &models.CachedResponse{
		CacheName: t.cfg.ShellCache,
		Method:    http.MethodGet,
		URL:       cacheKey(req.URL),
		Status:    resp.StatusCode,
		Header:    storableHeader(resp.Header),
		Body:      body,
		StoredAt:  t.now(),
	}, nil
}

// discover downloads same-origin assets referenced by the shell document.
func (t *Transport) discover(ctx context.Context, have []*models.CachedResponse) []*models.CachedResponse {
	var shell *models.CachedResponse
	seen := make(map[string]bool, len(have))
	for _, e := range have {
		seen[e.URL] = true
		if e.URL == t.cfg.shellURL {
			shell = e
		}
	}
	if shell == nil {
		return nil
	}

	var out []*models.CachedResponse
	for _, u := range t.assetURLs(shell) {
		if seen[u] {
			continue
		}
		seen[u] = true
		e, err := t.download(ctx, u)
		if err != nil {
			t.log.Warn(ctx, "skipping shell asset", "url", u, "error", err)
			continue
		}
		out = append(out, e)
	}
	return out
}

func (t *Transport) assetURLs(shell *models.CachedResponse) []string {
	base, err := url.Parse(shell.URL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(shell.Body))
	if err != nil {
		return nil
	}

	var urls []string
	add := func(ref string) {
		if ref == "" {
			return
		}
		u, err := base.Parse(ref)
		if err != nil || !t.cfg.sameOrigin(u) {
			return
		}
		urls = append(urls, cacheKey(u))
	}

	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		add(s.AttrOr("src", ""))
	})
	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		add(s.AttrOr("href", ""))
	})
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		add(s.AttrOr("src", ""))
	})
	return urls
}

// Activate deletes every cache other than the current shell and runtime
// caches and returns the names it removed.
func (t *Transport) Activate(ctx context.Context) ([]string, error) {
	names, err := t.repo.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("activate: %w", err)
	}

	var removed []string
	for _, n := range names {
		if n == t.cfg.ShellCache || n == t.cfg.RuntimeCache {
			continue
		}
		count, err := t.repo.DeleteCache(ctx, n)
		if err != nil {
			return removed, fmt.Errorf("activate: %w", err)
		}
		t.log.Info(ctx, "old cache deleted", "cache", n, "entries", count)
		removed = append(removed, n)
	}
	return removed, nil
}

// ClearRuntime drops every runtime cache entry. Replies there were fetched
// with the current user's token.
func (t *Transport) ClearRuntime(ctx context.Context) (int64, error) {
	n, err := t.repo.DeleteCache(ctx, t.cfg.RuntimeCache)
	if err != nil {
		return 0, fmt.Errorf("clear runtime cache: %w", err)
	}
	t.log.Info(ctx, "runtime cache cleared", "entries", n)
	return n, nil
}

// Purge drops runtime cache entries stored more than olderThan ago.
func (t *Transport) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := t.repo.DeleteOlderThan(ctx, t.cfg.RuntimeCache, t.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	if n > 0 {
		t.log.Info(ctx, "runtime cache purged", "entries", n, "older_than", olderThan)
	}
	return n, nil
}
