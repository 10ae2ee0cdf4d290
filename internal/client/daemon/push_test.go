package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/storykeeper/internal/client/models"
	"github.com/dmitrijs2005/storykeeper/internal/client/push"
)

type recNotifier struct{ shown []push.Notification }

func (r *recNotifier) Show(_ context.Context, n push.Notification) error {
	r.shown = append(r.shown, n)
	return nil
}

type fakeSubscriptions struct {
	key    []byte
	keyErr error
	fail   bool
	cur    *models.PushSubscription
}

func (f *fakeSubscriptions) ApplicationServerKey(context.Context) ([]byte, error) {
	return f.key, f.keyErr
}

func (f *fakeSubscriptions) Subscribe(_ context.Context, sub models.PushSubscription) bool {
	if f.fail {
		return false
	}
	f.cur = &sub
	return true
}

func (f *fakeSubscriptions) Unsubscribe(context.Context) bool {
	if f.fail || f.cur == nil {
		return false
	}
	f.cur = nil
	return true
}

func (f *fakeSubscriptions) Current(context.Context) (models.PushSubscription, bool) {
	if f.cur == nil {
		return models.PushSubscription{}, false
	}
	return *f.cur, true
}

func send(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPushEndpoint_ShowsNotification(t *testing.T) {
	f := newFixture(t)
	n := &recNotifier{}
	f.d.deps.Push = push.NewHandler(n, nil, nil)

	rec := send(t, f.d.Router(), http.MethodPost, "/_offline/push", `{"title":"New story","url":"/#/stories/7","storyId":"7"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, n.shown, 1)

	var got push.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, n.shown[0], got)
	assert.Equal(t, "7", got.StoryID)

	rec = send(t, f.d.Router(), http.MethodPost, "/_offline/push", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, push.DefaultTitle, n.shown[1].Title)
}

func TestPushRoutes_NotMountedWithoutDeps(t *testing.T) {
	f := newFixture(t)
	f.net.offline.Store(true)

	rec := send(t, f.d.Router(), http.MethodPost, "/_offline/push", "{}")
	assert.Equal(t, http.StatusBadGateway, rec.Code, "falls through to the proxy")
}

func TestSubscriptionEndpoints(t *testing.T) {
	f := newFixture(t)
	subs := &fakeSubscriptions{key: []byte{4, 0xfb, 0xff}}
	f.d.deps.Subscriptions = subs
	h := f.d.Router()

	rec := send(t, h, http.MethodGet, "/_offline/push/key", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"key":"BPv_"}`, rec.Body.String())

	rec = send(t, h, http.MethodGet, "/_offline/subscription", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = send(t, h, http.MethodDelete, "/_offline/subscription", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = send(t, h, http.MethodPut, "/_offline/subscription", `{"endpoint":"https://push/1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(t, h, http.MethodPut, "/_offline/subscription",
		`{"endpoint":"https://push/1","expirationTime":null,"keys":{"p256dh":"p","auth":"a"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, subs.cur)
	assert.Equal(t, "https://push/1", subs.cur.Endpoint)

	rec = send(t, h, http.MethodGet, "/_offline/subscription", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cur models.PushSubscription
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cur))
	assert.Equal(t, *subs.cur, cur)

	subs.fail = true
	rec = send(t, h, http.MethodDelete, "/_offline/subscription", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	subs.fail = false
	rec = send(t, h, http.MethodDelete, "/_offline/subscription", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, subs.cur)

	subs.keyErr = errors.New("offline")
	rec = send(t, h, http.MethodGet, "/_offline/push/key", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
