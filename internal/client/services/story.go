package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/vincent-petithory/dataurl"

	"github.com/dmitrijs2005/storykeeper/internal/client/blobs"
	"github.com/dmitrijs2005/storykeeper/internal/client/client"
	"github.com/dmitrijs2005/storykeeper/internal/client/connectivity"
	"github.com/dmitrijs2005/storykeeper/internal/client/models"
	"github.com/dmitrijs2005/storykeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/storykeeper/internal/logging"
)

// errCachedReply marks a feed answered by the response cache.
var errCachedReply = fmt.Errorf("%w: feed served from response cache", client.ErrUnavailable)

// StoryStore is the part of the local store the story service needs.
type StoryStore interface {
	SaveStories(ctx context.Context, list []models.Story) error
	GetAllStories(ctx context.Context) ([]models.Story, error)
	SaveOutbox(ctx context.Context, p models.OutboxPayload) (int64, error)
}

// Listing is the result of reading the feed. When FromCache is set, Cause
// holds the reason the remote call was not used.
type Listing struct {
	Stories   []models.Story
	FromCache bool
	Cause     error
}

// SubmitResult tells whether a story went straight to the server or was
// queued in the outbox under Key.
type SubmitResult struct {
	Queued bool
	Key    int64
}

// StoryService reads the feed with a local fallback and submits stories,
// queueing them while offline.
type StoryService interface {
	List(ctx context.Context) Listing
	Refresh(ctx context.Context) (int, error)
	Submit(ctx context.Context, s models.NewStory) (SubmitResult, error)
	Search(ctx context.Context, query string) ([]models.Story, error)
}

type storyService struct {
	client client.Client
	store  StoryStore
	meta   metadata.Repository
	online connectivity.Checker
	blobs  blobs.Store
	log    logging.Logger
	now    func() time.Time
}

// NewStoryService wires the service. meta and blobStore may be nil.
func NewStoryService(c client.Client, st StoryStore, meta metadata.Repository, online connectivity.Checker, blobStore blobs.Store, log logging.Logger) StoryService {
	if log == nil {
		log = logging.Nop()
	}
	return &storyService{
		client: c,
		store:  st,
		meta:   meta,
		online: online,
		blobs:  blobStore,
		log:    log.With("component", "stories"),
		now:    time.Now,
	}
}

// Refresh fetches the feed and caches it. It returns the number of stories
// received. A reply from the response cache is not a refresh.
func (s *storyService) Refresh(ctx context.Context) (int, error) {
	feed, err := s.client.GetStories(ctx)
	if err != nil {
		return 0, err
	}
	if feed.Cached {
		return 0, errCachedReply
	}
	list := feed.Stories
	if err := s.store.SaveStories(ctx, list); err != nil {
		s.log.Warn(ctx, "fetched stories were not cached", "error", err)
	}
	if s.meta != nil {
		if err := metadata.SetTime(ctx, s.meta, metadata.KeyLastRefresh, s.now()); err != nil {
			s.log.Warn(ctx, "failed to record refresh time", "error", err)
		}
	}
	return len(list), nil
}

// List returns the remote feed when reachable and the cached one otherwise.
// It never fails; a broken local store yields an empty listing.
func (s *storyService) List(ctx context.Context) Listing {
	feed, err := s.client.GetStories(ctx)
	if err == nil && feed.Cached {
		s.log.Info(ctx, "serving stories from response cache")
		return Listing{Stories: feed.Stories, FromCache: true, Cause: errCachedReply}
	}
	if err == nil {
		if err := s.store.SaveStories(ctx, feed.Stories); err != nil {
			s.log.Warn(ctx, "fetched stories were not cached", "error", err)
		}
		return Listing{Stories: feed.Stories}
	}

	s.log.Info(ctx, "serving cached stories", "reason", err)
	cached, cerr := s.store.GetAllStories(ctx)
	if cerr != nil {
		s.log.Warn(ctx, "cached stories unavailable", "error", cerr)
	}
	SortStories(cached, SortNewest)
	return Listing{Stories: cached, FromCache: true, Cause: err}
}

// Submit uploads the story when online. Offline, or when the upload fails for
// lack of connectivity, the story is queued in the outbox instead. Other
// upload errors are returned to the caller.
func (s *storyService) Submit(ctx context.Context, ns models.NewStory) (SubmitResult, error) {
	if s.online == nil || s.online.Online(ctx) {
		err := s.client.AddStory(ctx, ns)
		if err == nil {
			return SubmitResult{}, nil
		}
		if !errors.Is(err, client.ErrUnavailable) {
			return SubmitResult{}, err
		}
		s.log.Info(ctx, "upload failed, queueing story", "error", err)
	}

	p := models.OutboxPayload{Description: ns.Description, Lat: ns.Lat, Lon: ns.Lon}
	if len(ns.Photo) > 0 {
		s.attachPhoto(ctx, &p, ns)
	}

	key, err := s.store.SaveOutbox(ctx, p)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("failed to queue story: %w", err)
	}
	return SubmitResult{Queued: true, Key: key}, nil
}

// attachPhoto prefers the blob store and falls back to an inline data URL.
func (s *storyService) attachPhoto(ctx context.Context, p *models.OutboxPayload, ns models.NewStory) {
	contentType := ns.PhotoType
	if contentType == "" {
		contentType = http.DetectContentType(ns.Photo)
	}

	if s.blobs != nil {
		key, err := s.blobs.Put(ctx, ns.Photo, contentType)
		if err == nil {
			p.PhotoBlob = key
			return
		}
		s.log.Warn(ctx, "blob store unavailable, keeping photo inline", "error", err)
	}
	p.PhotoDataURL = dataurl.New(ns.Photo, contentType).String()
}

func (s *storyService) Search(ctx context.Context, query string) ([]models.Story, error) {
	all, err := s.store.GetAllStories(ctx)
	out := make([]models.Story, 0, len(all))
	for _, st := range all {
		if st.Matches(query) {
			out = append(out, st)
		}
	}
	SortStories(out, SortNewest)
	return out, err
}

type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
	SortName   SortOrder = "name"
)

// SortStories orders list in place. Ties keep their relative order.
func SortStories(list []models.Story, order SortOrder) {
	switch order {
	case SortOldest:
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].CreatedTime().Before(list[j].CreatedTime())
		})
	case SortName:
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Name < list[j].Name
		})
	default:
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].CreatedTime().After(list[j].CreatedTime())
		})
	}
}
