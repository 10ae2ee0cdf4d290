package favorites

import (
	"context"
	"database/sql"
	"fmt"
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

// Save upserts by story id. A zero SavedAt is stamped with the current time.
func (r *SQLiteRepository) Save(ctx context.Context, f models.Favorite) error {
	if f.ID == "" {
		return fmt.Errorf("failed to save favorite: empty id")
	}
	if f.SavedAt.IsZero() {
		f.SavedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO favorites (id, name, description, photo_url, created_at, lat, lon, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name,
			description = excluded.description,
			photo_url = excluded.photo_url,
			created_at = excluded.created_at,
			lat = excluded.lat,
			lon = excluded.lon,
			saved_at = excluded.saved_at
	`, f.ID, f.Name, f.Description, f.PhotoURL, f.CreatedAt, nullFloat(f.Lat), nullFloat(f.Lon), f.SavedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save favorite %s: %w", f.ID, err)
	}
	return nil
}

// GetAll returns favorites, most recently saved first.
func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Favorite, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, photo_url, created_at, lat, lon, saved_at
		FROM favorites ORDER BY saved_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select favorites: %w", err)
	}
	defer rows.Close()

	result := make([]models.Favorite, 0)
	for rows.Next() {
		var (
			f        models.Favorite
			lat, lon sql.NullFloat64
			savedAt  int64
		)
		if err := rows.Scan(&f.ID, &f.Name, &f.Description, &f.PhotoURL, &f.CreatedAt, &lat, &lon, &savedAt); err != nil {
			return nil, fmt.Errorf("failed to scan favorite: %w", err)
		}
		if lat.Valid {
			f.Lat = models.Float(lat.Float64)
		}
		if lon.Valid {
			f.Lon = models.Float(lon.Float64)
		}
		f.SavedAt = time.UnixMilli(savedAt)
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate favorites: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM favorites WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check favorite %s: %w", id, err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM favorites WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete favorite %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM favorites`); err != nil {
		return fmt.Errorf("failed to clear favorites: %w", err)
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
