package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/client/models"
	"github.com/dmitrijs2005/storykeeper/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const columns = `seq, client_ref, description, photo_data_url, photo_blob, lat, lon,
	created_at, attempts, next_attempt_at, last_error, delivered_at`

func (r *SQLiteRepository) Insert(ctx context.Context, p models.OutboxPayload) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox (client_ref, description, photo_data_url, photo_blob, lat, lon, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ClientRef, p.Description, p.PhotoDataURL, p.PhotoBlob, nullFloat(p.Lat), nullFloat(p.Lon), p.CreatedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to insert outbox entry: %w", err)
	}
	key, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get outbox key: %w", err)
	}
	return key, nil
}

func (r *SQLiteRepository) ListAfter(ctx context.Context, after int64, limit int) ([]models.OutboxEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+columns+` FROM outbox WHERE seq > ? ORDER BY seq ASC LIMIT ?`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select outbox: %w", err)
	}
	defer rows.Close()

	result := make([]models.OutboxEntry, 0)
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) GetByKey(ctx context.Context, key int64) (*models.OutboxEntry, error) {
	e, err := scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM outbox WHERE seq = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM outbox WHERE seq = ?`, key); err != nil {
		return fmt.Errorf("failed to delete outbox entry %d: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) MarkAttempt(ctx context.Context, key int64, attempts int, nextAt time.Time, lastErr string) error {
	var next int64
	if !nextAt.IsZero() {
		next = nextAt.UnixMilli()
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET attempts = ?, next_attempt_at = ?, last_error = ? WHERE seq = ?
	`, attempts, next, lastErr, key)
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry %d: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) MarkDelivered(ctx context.Context, key int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox SET delivered_at = ? WHERE seq = ?`, at.UnixMilli(), key)
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry %d delivered: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE delivered_at = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outbox: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (models.OutboxEntry, error) {
	var (
		e                 models.OutboxEntry
		lat, lon          sql.NullFloat64
		createdAt, nextAt int64
		deliveredAt       int64
	)
	err := row.Scan(&e.Key, &e.Payload.ClientRef, &e.Payload.Description, &e.Payload.PhotoDataURL,
		&e.Payload.PhotoBlob, &lat, &lon, &createdAt, &e.Attempts, &nextAt, &e.LastError, &deliveredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return e, err
	}
	if err != nil {
		return e, fmt.Errorf("failed to scan outbox entry: %w", err)
	}
	if lat.Valid {
		e.Payload.Lat = models.Float(lat.Float64)
	}
	if lon.Valid {
		e.Payload.Lon = models.Float(lon.Float64)
	}
	e.Payload.CreatedAt = time.UnixMilli(createdAt)
	if nextAt > 0 {
		e.NextAttemptAt = time.UnixMilli(nextAt)
	}
	if deliveredAt > 0 {
		e.DeliveredAt = time.UnixMilli(deliveredAt)
	}
	return e, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
