package push

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/storykeeper/internal/client/client"
	"github.com/dmitrijs2005/storykeeper/internal/client/migrations"
	"github.com/dmitrijs2005/storykeeper/internal/client/models"
	"github.com/dmitrijs2005/storykeeper/internal/logging"
	_ "modernc.org/sqlite"
)

func TestParsePayload(t *testing.T) {
	defaults := Payload{
		Title: DefaultTitle, Body: DefaultBody, URL: DefaultURL,
		Icon: DefaultIcon, Badge: DefaultIcon, Tag: DefaultTag,
	}

	tests := []struct {
		name string
		in   []byte
		want Payload
	}{
		{"nil", nil, defaults},
		{"malformed", []byte("{not json"), defaults},
		{"full", []byte(`{"title":"New story","body":"Ann posted","url":"/#/stories/7","icon":"/i.png","badge":"/b.png","tag":"t","storyId":"7"}`),
			Payload{Title: "New story", Body: "Ann posted", URL: "/#/stories/7", Icon: "/i.png", Badge: "/b.png", Tag: "t", StoryID: "7"}},
		{"partial", []byte(`{"body":"hello"}`),
			Payload{Title: DefaultTitle, Body: "hello", URL: DefaultURL, Icon: DefaultIcon, Badge: DefaultIcon, Tag: DefaultTag}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ParsePayload(tt.in)); diff != "" {
				t.Errorf("ParsePayload mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type recNotifier struct {
	shown []Notification
	err   error
}

func (r *recNotifier) Show(_ context.Context, n Notification) error {
	r.shown = append(r.shown, n)
	return r.err
}

type fakeWindow struct {
	url     string
	focused bool
}

func (w *fakeWindow) URL() string                 { return w.url }
func (w *fakeWindow) Focus(context.Context) error { w.focused = true; return nil }

type fakeWindows struct {
	wins    []*fakeWindow
	listErr error
	opened  []string
}

func (f *fakeWindows) List(context.Context) ([]Window, error) {
	out := make([]Window, 0, len(f.wins))
	for _, w := range f.wins {
		out = append(out, w)
	}
	return out, f.listErr
}

func (f *fakeWindows) Open(_ context.Context, url string) error {
	f.opened = append(f.opened, url)
	return nil
}

func TestHandlePush_ShowsNotification(t *testing.T) {
	n := &recNotifier{}
	h := NewHandler(n, &fakeWindows{}, logging.Nop())

	got, err := h.HandlePush(context.Background(), []byte(`{"title":"Hi","url":"/#/saved"}`))
	require.NoError(t, err)
	require.Len(t, n.shown, 1)
	assert.Equal(t, got, n.shown[0])
	assert.Equal(t, "Hi", got.Title)
	assert.Equal(t, "/#/saved", got.URL)
	assert.Equal(t, []Action{{Action: OpenAction, Title: "Open"}}, got.Actions)
}

func TestHandlePush_NotifierError(t *testing.T) {
	boom := errors.New("denied")
	h := NewHandler(&recNotifier{err: boom}, &fakeWindows{}, nil)

	_, err := h.HandlePush(context.Background(), nil)
	require.ErrorIs(t, err, boom)
}

func TestHandleClick_FocusesMatchingWindow(t *testing.T) {
	a := &fakeWindow{url: "https://app.example/#/about"}
	b := &fakeWindow{url: "https://app.example/#/saved"}
	ws := &fakeWindows{wins: []*fakeWindow{a, b}}
	h := NewHandler(&recNotifier{}, ws, logging.Nop())

	require.NoError(t, h.HandleClick(context.Background(), Notification{URL: "/#/saved"}))
	assert.False(t, a.focused)
	assert.True(t, b.focused)
	assert.Empty(t, ws.opened)
}

func TestHandleClick_OpensWindowWhenNoneMatches(t *testing.T) {
	ws := &fakeWindows{wins: []*fakeWindow{{url: "https://app.example/#/about"}}, listErr: nil}
	h := NewHandler(&recNotifier{}, ws, logging.Nop())

	require.NoError(t, h.HandleClick(context.Background(), Notification{URL: "/#/stories/9"}))
	assert.Equal(t, []string{"/#/stories/9"}, ws.opened)

	ws.opened = nil
	ws.wins = nil
	ws.listErr = errors.New("no clients api")
	require.NoError(t, h.HandleClick(context.Background(), Notification{}))
	assert.Equal(t, []string{DefaultURL}, ws.opened)
}

func TestHandleClick_WithoutWindows(t *testing.T) {
	h := NewHandler(&recNotifier{}, nil, nil)
	require.ErrorIs(t, h.HandleClick(context.Background(), Notification{URL: "/"}), ErrNoWindows)
}

func TestLogNotifier_ShowsThroughHandler(t *testing.T) {
	h := NewHandler(NewLogNotifier(nil), nil, nil)
	n, err := h.HandlePush(context.Background(), []byte(`{"title":"New story"}`))
	require.NoError(t, err)
	assert.Equal(t, "New story", n.Title)
	assert.Equal(t, DefaultTag, n.Tag)
}

func TestSubscriptionFromJSON(t *testing.T) {
	sub, err := SubscriptionFromJSON([]byte(`{"endpoint":"https://push.example/abc","expirationTime":null,"keys":{"p256dh":"BPk","auth":"xyz"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.PushSubscription{
		Endpoint: "https://push.example/abc",
		Keys:     models.PushSubscriptionKeys{P256dh: "BPk", Auth: "xyz"},
	}, sub)

	_, err = SubscriptionFromJSON([]byte(`{"endpoint":"https://push.example/abc"}`))
	require.ErrorIs(t, err, ErrInvalidSubscription)

	_, err = SubscriptionFromJSON([]byte(`[`))
	require.ErrorIs(t, err, ErrInvalidSubscription)
}

func TestDecodeApplicationServerKey(t *testing.T) {
	raw := []byte{0x04, 0xfb, 0xff, 0x10, 0x3e}
	unpadded := base64.RawURLEncoding.EncodeToString(raw)
	require.NotContains(t, unpadded, "=")

	got, err := DecodeApplicationServerKey(unpadded)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = DecodeApplicationServerKey(base64.URLEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = DecodeApplicationServerKey("  ")
	require.ErrorIs(t, err, ErrEmptyKey)

	_, err = DecodeApplicationServerKey("***")
	require.Error(t, err)
}

// ---- subscription service ----

type fakeClient struct {
	client.Client
	key      string
	keyErr   error
	subErr   error
	unsubErr error
	subs     []models.PushSubscription
	unsubbed []string
}

func (f *fakeClient) GetVapidPublicKey(context.Context) (string, error) { return f.key, f.keyErr }

func (f *fakeClient) Subscribe(_ context.Context, s models.PushSubscription) error {
	if f.subErr != nil {
		return f.subErr
	}
	f.subs = append(f.subs, s)
	return nil
}

func (f *fakeClient) Unsubscribe(_ context.Context, endpoint string) error {
	if f.unsubErr != nil {
		return f.unsubErr
	}
	f.unsubbed = append(f.unsubbed, endpoint)
	return nil
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db))
	return db
}

var testSub = models.PushSubscription{
	Endpoint: "https://push.example/abc",
	Keys:     models.PushSubscriptionKeys{P256dh: "p", Auth: "a"},
}

func TestSubscriptionService_SubscribeAndUnsubscribe(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{key: "BAQ"}
	s := NewSubscriptionService(fc, setupDB(t), logging.Nop())

	assert.False(t, s.Unsubscribe(ctx), "nothing to unsubscribe yet")

	require.True(t, s.Subscribe(ctx, testSub))
	assert.Equal(t, []models.PushSubscription{testSub}, fc.subs)

	cur, ok := s.Current(ctx)
	require.True(t, ok)
	assert.Equal(t, testSub, cur)

	require.True(t, s.Unsubscribe(ctx))
	assert.Equal(t, []string{testSub.Endpoint}, fc.unsubbed)
	_, ok = s.Current(ctx)
	assert.False(t, ok)
}

func TestSubscriptionService_FailuresReturnFalse(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{subErr: client.ErrUnavailable}
	s := NewSubscriptionService(fc, setupDB(t), logging.Nop())

	assert.False(t, s.Subscribe(ctx, testSub))
	_, ok := s.Current(ctx)
	assert.False(t, ok)

	fc.subErr = nil
	require.True(t, s.Subscribe(ctx, testSub))

	fc.unsubErr = client.ErrUnauthorized
	assert.False(t, s.Unsubscribe(ctx))
	_, ok = s.Current(ctx)
	assert.True(t, ok, "subscription is kept when the API refuses to drop it")
}

func TestSubscriptionService_ApplicationServerKey(t *testing.T) {
	fc := &fakeClient{key: base64.RawURLEncoding.EncodeToString([]byte{1, 2, 3, 4, 5})}
	s := NewSubscriptionService(fc, setupDB(t), nil)

	got, err := s.ApplicationServerKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, got)

	fc.keyErr = client.ErrUnavailable
	_, err = s.ApplicationServerKey(context.Background())
	require.ErrorIs(t, err, client.ErrUnavailable)
}
