// Package favorites persists user-curated bookmarks of stories. Unlike the
// story cache, favorites are never written or evicted by network activity.
package favorites

import (
	"context"

	"github.com/dmitrijs2005/storykeeper/internal/client/models"
)

type Repository interface {
	Save(ctx context.Context, f models.Favorite) error
	GetAll(ctx context.Context) ([]models.Favorite, error)
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}
