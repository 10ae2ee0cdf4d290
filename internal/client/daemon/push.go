package daemon

import (
	"encoding/base64"
	"io"
	"net/http"

	"github.com/dmitrijs2005/storykeeper/internal/client/push"
)

const maxPushBody = 64 << 10

// handlePush receives a relayed push message and answers with the
// notification that was shown for it.
func (d *Daemon) handlePush(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxPushBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("unreadable push message"))
		return
	}
	n, err := d.deps.Push.HandlePush(r.Context(), data)
	if err != nil {
		d.log.Warn(r.Context(), "push not shown", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse("notification not shown"))
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// handlePushKey serves the API's application server key, unpadded, for
// creating a browser subscription.
func (d *Daemon) handlePushKey(w http.ResponseWriter, r *http.Request) {
	key, err := d.deps.Subscriptions.ApplicationServerKey(r.Context())
	if err != nil {
		d.log.Warn(r.Context(), "application server key unavailable", "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse("push key unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": base64.RawURLEncoding.EncodeToString(key)})
}

func (d *Daemon) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, ok := d.deps.Subscriptions.Current(r.Context())
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse("not subscribed"))
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// handlePutSubscription takes a browser PushSubscription JSON document.
func (d *Daemon) handlePutSubscription(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxPushBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("unreadable subscription"))
		return
	}
	sub, err := push.SubscriptionFromJSON(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if !d.deps.Subscriptions.Subscribe(r.Context(), sub) {
		writeJSON(w, http.StatusBadGateway, errorResponse("subscribe failed"))
		return
	}
	writeJSON(w, http.StatusOK, errorBody{Message: "subscribed"})
}

func (d *Daemon) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	if _, ok := d.deps.Subscriptions.Current(r.Context()); !ok {
		writeJSON(w, http.StatusNotFound, errorResponse("not subscribed"))
		return
	}
	if !d.deps.Subscriptions.Unsubscribe(r.Context()) {
		writeJSON(w, http.StatusBadGateway, errorResponse("unsubscribe failed"))
		return
	}
	writeJSON(w, http.StatusOK, errorBody{Message: "unsubscribed"})
}
