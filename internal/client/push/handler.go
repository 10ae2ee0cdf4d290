package push

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/storykeeper/internal/logging"
)

// Notifier displays notifications.
type Notifier interface {
	Show(ctx context.Context, n Notification) error
}

// Window is an open application window.
type Window interface {
	URL() string
	Focus(ctx context.Context) error
}

// Windows enumerates and opens application windows.
type Windows interface {
	List(ctx context.Context) ([]Window, error)
	Open(ctx context.Context, url string) error
}

// ErrNoWindows is returned by HandleClick when the handler has no window
// access, as in the headless daemon.
var ErrNoWindows = errors.New("no window access")

type Handler struct {
	notifier Notifier
	windows  Windows
	log      logging.Logger
}

// NewHandler builds a handler. w may be nil when windows cannot be reached.
func NewHandler(n Notifier, w Windows, log logging.Logger) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{notifier: n, windows: w, log: log.With("component", "push")}
}

// HandlePush shows the notification described by a push message body.
func (h *Handler) HandlePush(ctx context.Context, data []byte) (Notification, error) {
	n := NewNotification(ParsePayload(data))
	if err := h.notifier.Show(ctx, n); err != nil {
		return n, fmt.Errorf("show notification: %w", err)
	}
	h.log.Debug(ctx, "notification shown", "tag", n.Tag, "url", n.URL)
	return n, nil
}

// HandleClick focuses the first window whose URL contains the notification
// target and opens a new window when none does.
func (h *Handler) HandleClick(ctx context.Context, n Notification) error {
	if h.windows == nil {
		return ErrNoWindows
	}
	target := n.URL
	if target == "" {
		target = DefaultURL
	}

	wins, err := h.windows.List(ctx)
	if err != nil {
		h.log.Warn(ctx, "listing windows failed", "error", err)
	}
	for _, w := range wins {
		if strings.Contains(w.URL(), target) {
			if err := w.Focus(ctx); err != nil {
				return fmt.Errorf("focus window: %w", err)
			}
			return nil
		}
	}

	if err := h.windows.Open(ctx, target); err != nil {
		return fmt.Errorf("open window: %w", err)
	}
	return nil
}

// LogNotifier shows notifications by writing them to the log.
type LogNotifier struct {
	log logging.Logger
}

func NewLogNotifier(log logging.Logger) *LogNotifier {
	if log == nil {
		log = logging.Nop()
	}
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Show(ctx context.Context, n Notification) error {
	l.log.Info(ctx, "notification", "title", n.Title, "body", n.Body, "url", n.URL, "tag", n.Tag)
	return nil
}
