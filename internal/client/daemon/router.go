package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/storykeeper/internal/client/models"
)

// Router returns the daemon's HTTP handler: the control API under /_offline
// and /healthz, everything else proxied to the web origin.
func (d *Daemon) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", d.handleHealth)
	r.Route("/_offline", func(r chi.Router) {
		r.Get("/outbox", d.handleOutbox)
		r.Post("/sync", d.handleSync)
		r.Get("/stories", d.handleStories)
		if d.deps.Push != nil {
			r.Post("/push", d.handlePush)
		}
		if d.deps.Subscriptions != nil {
			r.Get("/push/key", d.handlePushKey)
			r.Get("/subscription", d.handleGetSubscription)
			r.Put("/subscription", d.handlePutSubscription)
			r.Delete("/subscription", d.handleDeleteSubscription)
		}
	})

	r.NotFound(d.proxy().ServeHTTP)
	r.MethodNotAllowed(d.proxy().ServeHTTP)
	return r
}

func (d *Daemon) proxy() *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(d.origin)
			pr.SetXForwarded()
		},
		Transport: d.deps.Cache,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			d.log.Warn(r.Context(), "origin unreachable and nothing cached", "path", r.URL.Path, "error", err)
			writeJSON(w, http.StatusBadGateway, errorResponse("offline and not cached"))
		},
	}
}

type healthResponse struct {
	Status        string `json:"status"`
	Mode          string `json:"mode"`
	OutboxPending int    `json:"outboxPending"`
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Mode: string(d.deps.Watcher.Mode())}
	if resp.Mode == "" {
		resp.Mode = "unknown"
	}
	n, err := d.deps.Outbox.OutboxCount(r.Context())
	if err != nil {
		resp.Status = "degraded"
	}
	resp.OutboxPending = n
	writeJSON(w, http.StatusOK, resp)
}

type outboxItem struct {
	Key           int64    `json:"key"`
	ClientRef     string   `json:"clientRef"`
	Description   string   `json:"description"`
	HasPhoto      bool     `json:"hasPhoto"`
	Lat           *float64 `json:"lat,omitempty"`
	Lon           *float64 `json:"lon,omitempty"`
	CreatedAt     string   `json:"createdAt"`
	Attempts      int      `json:"attempts"`
	NextAttemptAt string   `json:"nextAttemptAt,omitempty"`
	LastError     string   `json:"lastError,omitempty"`
}

func toOutboxItem(e models.OutboxEntry) outboxItem {
	it := outboxItem{
		Key:         e.Key,
		ClientRef:   e.Payload.ClientRef,
		Description: e.Payload.Description,
		HasPhoto:    e.Payload.PhotoBlob != "" || e.Payload.PhotoDataURL != "",
		Lat:         e.Payload.Lat,
		Lon:         e.Payload.Lon,
		CreatedAt:   e.Payload.CreatedAt.Format(timeFormat),
		Attempts:    e.Attempts,
		LastError:   e.LastError,
	}
	if !e.NextAttemptAt.IsZero() {
		it.NextAttemptAt = e.NextAttemptAt.Format(timeFormat)
	}
	return it
}

func (d *Daemon) handleOutbox(w http.ResponseWriter, r *http.Request) {
	entries, err := d.deps.Outbox.OutboxEntries(r.Context())
	if err != nil {
		d.log.Warn(r.Context(), "outbox listing degraded", "error", err)
	}
	items := make([]outboxItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, toOutboxItem(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": items, "degraded": err != nil})
}

type syncResponse struct {
	Skipped  bool `json:"skipped"`
	Sent     int  `json:"sent"`
	Failed   int  `json:"failed"`
	Deferred int  `json:"deferred"`
	Parked   int  `json:"parked"`
}

func (d *Daemon) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := d.syncNow(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("sync interrupted"))
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{
		Skipped:  report.Skipped,
		Sent:     report.Sent,
		Failed:   report.Failed,
		Deferred: report.Deferred,
		Parked:   report.Parked,
	})
}

func (d *Daemon) handleStories(w http.ResponseWriter, r *http.Request) {
	var (
		list []models.Story
		err  error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		list, err = d.deps.Stories.Search(r.Context(), q)
		if err != nil {
			d.log.Warn(r.Context(), "story search degraded", "error", err)
		}
	} else {
		l := d.deps.Stories.List(r.Context())
		list = l.Stories
		w.Header().Set("X-Storykeeper-From-Cache", boolString(l.FromCache))
	}
	if list == nil {
		list = []models.Story{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"error": false, "listStory": list})
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

type errorBody struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

func errorResponse(msg string) errorBody {
	return errorBody{Error: true, Message: msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
