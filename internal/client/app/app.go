// Package app wires the offline layer's components from a Config. Both the
// storyd daemon and the CLI start from Build.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/storykeeper/internal/client/blobs"
	"github.com/dmitrijs2005/storykeeper/internal/client/client"
	"github.com/dmitrijs2005/storykeeper/internal/client/config"
	"github.com/dmitrijs2005/storykeeper/internal/client/connectivity"
	"github.com/dmitrijs2005/storykeeper/internal/client/push"
	"github.com/dmitrijs2005/storykeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/storykeeper/internal/client/services"
	"github.com/dmitrijs2005/storykeeper/internal/client/store"
	"github.com/dmitrijs2005/storykeeper/internal/client/swcache"
	"github.com/dmitrijs2005/storykeeper/internal/logging"
)

type Components struct {
	Config        *config.Config
	DB            *sql.DB
	Store         *store.Store
	Cache         *swcache.Transport
	API           *client.HTTPClient
	Session       services.SessionService
	Watcher       *connectivity.Watcher
	Stories       services.StoryService
	Syncer        *services.Syncer
	Blobs         blobs.Store
	Subscriptions *push.SubscriptionService
	Push          *push.Handler
	Log           logging.Logger
}

// Build opens the local database and assembles every component. The caller
// owns the result and must Close it.
func Build(ctx context.Context, cfg *config.Config, log logging.Logger) (*Components, error) {
	if log == nil {
		log = logging.Nop()
	}

	db, err := client.InitDatabase(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	blobStore, err := newBlobStore(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	cache, err := swcache.New(nil, db, cfg.CacheConfig(), log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("response cache init error: %w", err)
	}

	// The API client reads the token from the session, which in turn logs in
	// through the API client.
	var session services.SessionService
	api := client.NewHTTPClient(cfg.APIBaseURL,
		client.WithHTTPClient(cache.Client()),
		client.WithTimeout(cfg.RequestTimeout),
		client.WithTokenSource(client.TokenFunc(func(ctx context.Context) (string, error) {
			return session.Token(ctx)
		})),
	)
	session = services.NewSessionService(api, db, services.WithResponseCache(cache))

	st := store.New(db, log)
	watcher := connectivity.NewWatcher(api.Ping, cfg.OnlineCheckInterval, cfg.RequestTimeout, log)

	stories := services.NewStoryService(api, st, metadata.NewSQLiteRepository(db), watcher, blobStore, log)
	syncer := services.NewSyncer(st, api, watcher, blobStore, services.SyncConfig{
		RetryBackoff:  cfg.RetryBackoff,
		RetryMaxDelay: cfg.RetryMaxDelay,
		MaxAttempts:   cfg.MaxAttempts,
		UploadRate:    cfg.UploadRate,
		UploadBurst:   cfg.UploadBurst,
	}, log)

	return &Components{
		Config:        cfg,
		DB:            db,
		Store:         st,
		Cache:         cache,
		API:           api,
		Session:       session,
		Watcher:       watcher,
		Stories:       stories,
		Syncer:        syncer,
		Blobs:         blobStore,
		Subscriptions: push.NewSubscriptionService(api, db, log),
		Push:          push.NewHandler(push.NewLogNotifier(log), nil, log),
		Log:           log,
	}, nil
}

func (c *Components) Close() error {
	return c.DB.Close()
}

func newBlobStore(ctx context.Context, cfg *config.Config) (blobs.Store, error) {
	switch cfg.BlobBackend {
	case "", config.BlobBackendNone:
		return nil, nil
	case config.BlobBackendFS:
		return blobs.NewFSStore(cfg.BlobDir)
	case config.BlobBackendS3:
		return blobs.NewS3Store(ctx, blobs.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}
