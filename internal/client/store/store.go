package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/storykeeper/internal/client/models"
	"github.com/dmitrijs2005/storykeeper/internal/client/repositories/favorites"
	"github.com/dmitrijs2005/storykeeper/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/storykeeper/internal/client/repositories/stories"
	"github.com/dmitrijs2005/storykeeper/internal/dbx"
	"github.com/dmitrijs2005/storykeeper/internal/logging"
)

// ErrDegraded marks a result produced while the local store was failing.
var ErrDegraded = errors.New("local store degraded")

const defaultPageSize = 64

type Store struct {
	db       *sql.DB
	log      logging.Logger
	pageSize int
	now      func() time.Time
	newRef   func() string
}

type Option func(*Store)

// WithPageSize sets how many outbox rows GetOutbox reads per round trip.
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(db *sql.DB, log logging.Logger, opts ...Option) *Store {
	if log == nil {
		log = logging.Nop()
	}
	s := &Store{
		db:       db,
		log:      log.With("component", "store"),
		pageSize: defaultPageSize,
		now:      time.Now,
		newRef:   uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func degraded(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDegraded, op, err)
}

// SaveStories upserts every story in one transaction. A failing row is
// logged and skipped; the rows that succeeded are committed.
func (s *Store) SaveStories(ctx context.Context, list []models.Story) error {
	if len(list) == 0 {
		return nil
	}

	failed := 0
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := stories.NewSQLiteRepository(tx)
		for i, story := range list {
			err := dbx.WithSavepoint(ctx, tx, fmt.Sprintf("story_%d", i), func(ctx context.Context) error {
				return repo.Upsert(ctx, story)
			})
			if err != nil {
				failed++
				s.log.Warn(ctx, "story not cached", "id", story.ID, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error(ctx, "failed to cache stories", "count", len(list), "error", err)
		return degraded("save stories", err)
	}

	s.log.Debug(ctx, "stories cached", "count", len(list)-failed, "failed", failed)
	return nil
}

// GetAllStories returns every cached story. On failure the slice is empty
// and the error wraps ErrDegraded.
func (s *Store) GetAllStories(ctx context.Context) ([]models.Story, error) {
	list, err := stories.NewSQLiteRepository(s.db).GetAll(ctx)
	if err != nil {
		s.log.Error(ctx, "failed to read stories", "error", err)
		return []models.Story{}, degraded("get stories", err)
	}
	return list, nil
}

// DeleteStory removes a cached story. Deleting an unknown id is a no-op.
func (s *Store) DeleteStory(ctx context.Context, id string) error {
	if err := stories.NewSQLiteRepository(s.db).Delete(ctx, id); err != nil {
		s.log.Error(ctx, "failed to delete story", "id", id, "error", err)
		return degraded("delete story", err)
	}
	return nil
}

// SaveOutbox appends a payload and returns its key once committed.
// ClientRef and CreatedAt are filled in when empty.
func (s *Store) SaveOutbox(ctx context.Context, p models.OutboxPayload) (int64, error) {
	if p.ClientRef == "" {
		p.ClientRef = s.newRef()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}

	key, err := outbox.NewSQLiteRepository(s.db).Insert(ctx, p)
	if err != nil {
		s.log.Error(ctx, "failed to queue story", "client_ref", p.ClientRef, "error", err)
		return 0, degraded("save outbox", err)
	}
	s.log.Info(ctx, "story queued", "key", key, "client_ref", p.ClientRef)
	return key, nil
}

// GetOutbox yields pending payloads in ascending key order. Rows are read a
// page at a time and no connection is held while the consumer runs, so the
// consumer may delete entries as it goes. A read failure ends the sequence
// early. Each call starts a fresh pass.
func (s *Store) GetOutbox(ctx context.Context) iter.Seq2[int64, models.OutboxPayload] {
	return func(yield func(int64, models.OutboxPayload) bool) {
		for e := range s.PendingEntries(ctx) {
			if e.Delivered() {
				continue
			}
			if !yield(e.Key, e.Payload) {
				return
			}
		}
	}
}

// PendingEntries is GetOutbox with retry bookkeeping attached. It also
// yields entries already accepted by the server whose rows still have to be
// removed.
func (s *Store) PendingEntries(ctx context.Context) iter.Seq[models.OutboxEntry] {
	return func(yield func(models.OutboxEntry) bool) {
		repo := outbox.NewSQLiteRepository(s.db)
		var after int64
		for {
			if ctx.Err() != nil {
				return
			}
			page, err := repo.ListAfter(ctx, after, s.pageSize)
			if err != nil {
				s.log.Error(ctx, "failed to read outbox", "after", after, "error", err)
				return
			}
			for _, e := range page {
				if !yield(e) {
					return
				}
				after = e.Key
			}
			if len(page) < s.pageSize {
				return
			}
		}
	}
}

// OutboxEntries returns every pending entry with its retry bookkeeping.
func (s *Store) OutboxEntries(ctx context.Context) ([]models.OutboxEntry, error) {
	list, err := outbox.NewSQLiteRepository(s.db).ListAfter(ctx, 0, 0)
	if err != nil {
		s.log.Error(ctx, "failed to read outbox", "error", err)
		return []models.OutboxEntry{}, degraded("get outbox", err)
	}
	return slices.DeleteFunc(list, models.OutboxEntry.Delivered), nil
}

// OutboxEntry returns a single entry, or (nil, nil) when the key is gone.
func (s *Store) OutboxEntry(ctx context.Context, key int64) (*models.OutboxEntry, error) {
	e, err := outbox.NewSQLiteRepository(s.db).GetByKey(ctx, key)
	if err != nil {
		s.log.Error(ctx, "failed to read outbox entry", "key", key, "error", err)
		return nil, degraded("get outbox entry", err)
	}
	return e, nil
}

// OutboxCount returns the number of pending entries; 0 on failure.
func (s *Store) OutboxCount(ctx context.Context) (int, error) {
	n, err := outbox.NewSQLiteRepository(s.db).Count(ctx)
	if err != nil {
		s.log.Error(ctx, "failed to count outbox", "error", err)
		return 0, degraded("count outbox", err)
	}
	return n, nil
}

// DeleteOutbox removes an entry. Deleting an unknown key is a no-op.
func (s *Store) DeleteOutbox(ctx context.Context, key int64) error {
	if err := outbox.NewSQLiteRepository(s.db).Delete(ctx, key); err != nil {
		s.log.Error(ctx, "failed to delete outbox entry", "key", key, "error", err)
		return degraded("delete outbox", err)
	}
	return nil
}

// MarkOutboxAttempt records a failed delivery attempt for key.
func (s *Store) MarkOutboxAttempt(ctx context.Context, key int64, attempts int, nextAt time.Time, lastErr string) error {
	if err := outbox.NewSQLiteRepository(s.db).MarkAttempt(ctx, key, attempts, nextAt, lastErr); err != nil {
		s.log.Error(ctx, "failed to record outbox attempt", "key", key, "error", err)
		return degraded("mark outbox attempt", err)
	}
	return nil
}

// MarkOutboxDelivered records that the server accepted key. Such an entry
// is no longer pending and is never submitted again.
func (s *Store) MarkOutboxDelivered(ctx context.Context, key int64) error {
	if err := outbox.NewSQLiteRepository(s.db).MarkDelivered(ctx, key, s.now()); err != nil {
		s.log.Error(ctx, "failed to mark outbox entry delivered", "key", key, "error", err)
		return degraded("mark outbox delivered", err)
	}
	return nil
}

func (s *Store) SaveFavorite(ctx context.Context, story models.Story) error {
	f := models.Favorite{Story: story, SavedAt: s.now()}
	if err := favorites.NewSQLiteRepository(s.db).Save(ctx, f); err != nil {
		s.log.Error(ctx, "failed to save favorite", "id", story.ID, "error", err)
		return degraded("save favorite", err)
	}
	return nil
}

func (s *Store) GetFavorites(ctx context.Context) ([]models.Favorite, error) {
	list, err := favorites.NewSQLiteRepository(s.db).GetAll(ctx)
	if err != nil {
		s.log.Error(ctx, "failed to read favorites", "error", err)
		return []models.Favorite{}, degraded("get favorites", err)
	}
	return list, nil
}

func (s *Store) IsFavorite(ctx context.Context, id string) (bool, error) {
	ok, err := favorites.NewSQLiteRepository(s.db).Exists(ctx, id)
	if err != nil {
		s.log.Error(ctx, "failed to check favorite", "id", id, "error", err)
		return false, degraded("is favorite", err)
	}
	return ok, nil
}

func (s *Store) DeleteFavorite(ctx context.Context, id string) error {
	if err := favorites.NewSQLiteRepository(s.db).Delete(ctx, id); err != nil {
		s.log.Error(ctx, "failed to delete favorite", "id", id, "error", err)
		return degraded("delete favorite", err)
	}
	return nil
}

func (s *Store) ClearFavorites(ctx context.Context) error {
	if err := favorites.NewSQLiteRepository(s.db).Clear(ctx); err != nil {
		s.log.Error(ctx, "failed to clear favorites", "error", err)
		return degraded("clear favorites", err)
	}
	return nil
}
