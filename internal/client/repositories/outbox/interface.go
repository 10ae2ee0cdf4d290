// Package outbox persists story submissions that have not yet been accepted
// by the server.
//
// Keys come from an AUTOINCREMENT column, so they are strictly increasing in
// insertion order and never reused after a delete. A row exists exactly as
// long as its submission is unconfirmed.
package outbox

import (
	"context"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/client/models"
)

type Repository interface {
	// Insert appends a payload and returns its key.
	Insert(ctx context.Context, p models.OutboxPayload) (int64, error)

	// ListAfter returns up to limit entries with key > after, ascending.
	ListAfter(ctx context.Context, after int64, limit int) ([]models.OutboxEntry, error)

	// GetByKey returns (nil, nil) when the key is unknown.
	GetByKey(ctx context.Context, key int64) (*models.OutboxEntry, error)

	// Delete removes an entry; a missing key is not an error.
	Delete(ctx context.Context, key int64) error

	// MarkAttempt records a failed delivery attempt.
	MarkAttempt(ctx context.Context, key int64, attempts int, nextAt time.Time, lastErr string) error

	// MarkDelivered flags an accepted entry so it is never uploaded again.
	MarkDelivered(ctx context.Context, key int64, at time.Time) error

	// Count returns the number of entries not yet accepted.
	Count(ctx context.Context) (int, error)
}
