package responses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/client/models"
	"github.com/dmitrijs2005/storykeeper/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Put(ctx context.Context, c *models.CachedResponse) error {
	header, err := json.Marshal(c.Header)
	if err != nil {
		return fmt.Errorf("failed to encode cached header: %w", err)
	}
	storedAt := c.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}
	body := c.Body
	if body == nil {
		body = []byte{}
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cache_entries (cache_name, method, url, status, header, body, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_name, method, url) DO UPDATE SET status = excluded.status,
			header = excluded.header,
			body = excluded.body,
			stored_at = excluded.stored_at
	`, c.CacheName, c.Method, c.URL, c.Status, header, body, storedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put cache entry %s %s: %w", c.Method, c.URL, err)
	}
	return nil
}

func (r *SQLiteRepository) Match(ctx context.Context, cacheNames []string, method, url string) (*models.CachedResponse, error) {
	for _, name := range cacheNames {
		var (
			c        = models.CachedResponse{CacheName: name, Method: method, URL: url}
			header   []byte
			storedAt int64
		)
		err := r.db.QueryRowContext(ctx, `
			SELECT status, header, body, stored_at FROM cache_entries
			WHERE cache_name = ? AND method = ? AND url = ?
		`, name, method, url).Scan(&c.Status, &header, &c.Body, &storedAt)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to match cache entry %s %s: %w", method, url, err)
		}
		c.Header = http.Header{}
		if len(header) > 0 {
			if err := json.Unmarshal(header, &c.Header); err != nil {
				return nil, fmt.Errorf("failed to decode cached header: %w", err)
			}
		}
		c.StoredAt = time.UnixMilli(storedAt)
		return &c, nil
	}
	return nil, nil
}

func (r *SQLiteRepository) Names(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT cache_name FROM cache_entries ORDER BY cache_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache names: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan cache name: %w", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cache names: %w", err)
	}
	return names, nil
}

func (r *SQLiteRepository) DeleteCache(ctx context.Context, name string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_name = ?`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cache %s: %w", name, err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) DeleteOlderThan(ctx context.Context, name string, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE cache_name = ? AND stored_at < ?`, name, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache %s: %w", name, err)
	}
	return res.RowsAffected()
}
