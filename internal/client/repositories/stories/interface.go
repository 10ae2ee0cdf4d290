package stories

import (
	"context"

	"github.com/dmitrijs2005/storykeeper/internal/client/models"
)

// Repository describes operations on cached stories.
type Repository interface {
	// Upsert inserts the story or replaces the row with the same id.
	Upsert(ctx context.Context, s models.Story) error

	// GetAll returns every cached story in primary-key order.
	GetAll(ctx context.Context) ([]models.Story, error)

	// GetByID returns (nil, nil) when the id is unknown.
	GetByID(ctx context.Context, id string) (*models.Story, error)

	// Delete removes a story; a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// Count returns the number of cached stories.
	Count(ctx context.Context) (int, error)
}
