package cli

import (
	"bufio"
	"context"
	"io"
	"iter"
	"os"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/client/app"
	"github.com/dmitrijs2005/storykeeper/internal/client/config"
	"github.com/dmitrijs2005/storykeeper/internal/client/connectivity"
	"github.com/dmitrijs2005/storykeeper/internal/client/models"
	"github.com/dmitrijs2005/storykeeper/internal/client/services"
	"github.com/dmitrijs2005/storykeeper/internal/logging"
)

// localStore is the part of the local store the CLI reads and edits directly.
type localStore interface {
	GetAllStories(ctx context.Context) ([]models.Story, error)
	DeleteStory(ctx context.Context, id string) error
	OutboxEntries(ctx context.Context) ([]models.OutboxEntry, error)
	OutboxCount(ctx context.Context) (int, error)
	SaveFavorite(ctx context.Context, s models.Story) error
	GetFavorites(ctx context.Context) ([]models.Favorite, error)
	DeleteFavorite(ctx context.Context, id string) error
	ClearFavorites(ctx context.Context) error
}

type outboxSyncer interface {
	SyncOutbox(ctx context.Context) (services.SyncReport, error)
}

type modeWatcher interface {
	Mode() connectivity.Mode
	OnOnline(fn func(ctx context.Context))
	Run(ctx context.Context)
}

type App struct {
	config   *config.Config
	session  services.SessionService
	stories  services.StoryService
	syncer   outboxSyncer
	store    localStore
	watcher  modeWatcher
	log      logging.Logger
	closeFn  func() error
	userName string
	reader   *bufio.Reader
	out      io.Writer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	log := logging.New(os.Stderr, c.LogFormat, c.LogLevel)

	comps, err := app.Build(ctx, c, log)
	if err != nil {
		log.Error(ctx, "error initializing client", "error", err)
		return nil, err
	}

	a := &App{
		config:  c,
		session: comps.Session,
		stories: comps.Stories,
		syncer:  comps.Syncer,
		store:   comps.Store,
		watcher: comps.Watcher,
		log:     log,
		closeFn: comps.Close,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}
	if sess, err := comps.Session.Current(ctx); err == nil && sess.Valid() {
		a.userName = sess.Name
	}
	return a, nil
}

// Run starts the connectivity watcher and the REPL and blocks until the user
// exits or ctx is done.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		if a.closeFn != nil {
			_ = a.closeFn()
		}
	}()

	a.watcher.OnOnline(func(ctx context.Context) {
		go a.backgroundSync(ctx)
	})
	go a.watcher.Run(ctx)

	a.Root(ctx)
}

func (a *App) backgroundSync(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	report, err := a.syncer.SyncOutbox(ctx)
	if err != nil {
		a.log.Warn(ctx, "background sync interrupted", "error", err)
		return
	}
	if report.Sent > 0 || report.Failed > 0 {
		a.log.Info(ctx, "background sync finished", "report", report.String())
	}
}

func (a *App) isLoggedIn() bool {
	return a.userName != ""
}

// lines yields successive input lines from the shared reader.
func (a *App) lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			line, err := a.reader.ReadString('\n')
			if line == "" && err != nil {
				return
			}
			if !yield(line) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}
