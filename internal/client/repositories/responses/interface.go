// Package responses stores serialized HTTP responses for the response cache,
// partitioned by versioned cache name.
package responses

import (
	"context"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/client/models"
)

type Repository interface {
	// Put stores or replaces the entry for (cache, method, url).
	Put(ctx context.Context, r *models.CachedResponse) error

	// Match looks the request up in each named cache in order and returns the
	// first hit, or (nil, nil) when nothing matches.
	Match(ctx context.Context, cacheNames []string, method, url string) (*models.CachedResponse, error)

	// Names lists every cache name that currently holds entries.
	Names(ctx context.Context) ([]string, error)

	// DeleteCache drops a whole cache and reports how many entries went with it.
	DeleteCache(ctx context.Context, name string) (int64, error)

	// DeleteOlderThan drops entries of one cache stored before the cutoff.
	DeleteOlderThan(ctx context.Context, name string, before time.Time) (int64, error)
}
