package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/storykeeper/internal/client/client"
	"github.com/dmitrijs2005/storykeeper/internal/client/migrations"
	"github.com/dmitrijs2005/storykeeper/internal/client/models"
	"github.com/dmitrijs2005/storykeeper/internal/client/store"
	"github.com/dmitrijs2005/storykeeper/internal/logging"
	_ "modernc.org/sqlite"
)

// ---- helpers ----

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db))
	return db
}

func setupStore(t *testing.T) (*store.Store, *sql.DB) {
	t.Helper()
	db := setupDB(t)
	return store.New(db, logging.Nop()), db
}

func queue(t *testing.T, st *store.Store, descs ...string) []int64 {
	t.Helper()
	keys := make([]int64, 0, len(descs))
	for _, d := range descs {
		k, err := st.SaveOutbox(context.Background(), models.OutboxPayload{Description: d})
		require.NoError(t, err)
		keys = append(keys, k)
	}
	return keys
}

func pendingDescriptions(t *testing.T, st *store.Store) []string {
	t.Helper()
	entries, err := st.OutboxEntries(context.Background())
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Payload.Description)
	}
	return out
}

// ---- fake client ----

// fakeClient implements client.Client for service unit tests. Methods that a
// test does not configure panic through the nil embedded interface.
type fakeClient struct {
	client.Client

	mu       sync.Mutex
	addFn    func(models.NewStory) error
	added    []models.NewStory
	addCalls int

	stories       []models.Story
	storiesErr    error
	storiesCached bool

	loginSess models.Session
	loginErr  error
}

func (f *fakeClient) AddStory(ctx context.Context, s models.NewStory) error {
	f.mu.Lock()
	f.addCalls++
	fn := f.addFn
	f.mu.Unlock()

	var err error
	if fn != nil {
		err = fn(s)
	}
	if err == nil {
		f.mu.Lock()
		f.added = append(f.added, s)
		f.mu.Unlock()
	}
	return err
}

func (f *fakeClient) GetStories(ctx context.Context) (client.Feed, error) {
	return client.Feed{Stories: f.stories, Cached: f.storiesCached}, f.storiesErr
}

func (f *fakeClient) Login(ctx context.Context, email, password string) (models.Session, error) {
	return f.loginSess, f.loginErr
}

func (f *fakeClient) descriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.added))
	for _, s := range f.added {
		out = append(out, s.Description)
	}
	return out
}
