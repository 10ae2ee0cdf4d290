package push

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/storykeeper/internal/client/client"
	"github.com/dmitrijs2005/storykeeper/internal/client/models"
	"github.com/dmitrijs2005/storykeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/storykeeper/internal/logging"
)

var (
	ErrEmptyKey            = errors.New("empty application server key")
	ErrInvalidSubscription = errors.New("invalid push subscription")
)

// browserSubscription is the shape of PushSubscription.toJSON().
type browserSubscription struct {
	Endpoint       string   `json:"endpoint"`
	ExpirationTime *float64 `json:"expirationTime"`
	Keys           struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// SubscriptionFromJSON converts a browser PushSubscription JSON document to
// the form registered with the API.
func SubscriptionFromJSON(data []byte) (models.PushSubscription, error) {
	var b browserSubscription
	if err := json.Unmarshal(data, &b); err != nil {
		return models.PushSubscription{}, fmt.Errorf("%w: %w", ErrInvalidSubscription, err)
	}
	if b.Endpoint == "" || b.Keys.P256dh == "" || b.Keys.Auth == "" {
		return models.PushSubscription{}, fmt.Errorf("%w: endpoint and keys are required", ErrInvalidSubscription)
	}
	return models.PushSubscription{
		Endpoint: b.Endpoint,
		Keys:     models.PushSubscriptionKeys{P256dh: b.Keys.P256dh, Auth: b.Keys.Auth},
	}, nil
}

// DecodeApplicationServerKey decodes a VAPID public key given as URL-safe
// base64 with or without padding.
func DecodeApplicationServerKey(key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrEmptyKey
	}
	if m := len(key) % 4; m != 0 {
		key += strings.Repeat("=", 4-m)
	}
	b, err := base64.URLEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("decode application server key: %w", err)
	}
	return b, nil
}

// SubscriptionService registers this device for push with the story API.
// Every operation is best effort: failures are logged and reported as false.
type SubscriptionService struct {
	client client.Client
	meta   metadata.Repository
	log    logging.Logger
}

func NewSubscriptionService(c client.Client, db *sql.DB, log logging.Logger) *SubscriptionService {
	if log == nil {
		log = logging.Nop()
	}
	return &SubscriptionService{
		client: c,
		meta:   metadata.NewSQLiteRepository(db),
		log:    log.With("component", "push"),
	}
}

// ApplicationServerKey fetches and decodes the API's VAPID public key.
func (s *SubscriptionService) ApplicationServerKey(ctx context.Context) ([]byte, error) {
	key, err := s.client.GetVapidPublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("get vapid public key: %w", err)
	}
	return DecodeApplicationServerKey(key)
}

// Subscribe registers sub with the API and remembers it locally. The
// subscription must have been created with the key from ApplicationServerKey.
func (s *SubscriptionService) Subscribe(ctx context.Context, sub models.PushSubscription) bool {
	if err := s.client.Subscribe(ctx, sub); err != nil {
		s.log.Warn(ctx, "push subscribe failed", "endpoint", sub.Endpoint, "error", err)
		return false
	}

	data, err := json.Marshal(sub)
	if err == nil {
		err = s.meta.Set(ctx, metadata.KeyPushSubscription, data)
	}
	if err != nil {
		s.log.Warn(ctx, "failed to remember push subscription", "error", err)
	}
	return true
}

// Unsubscribe removes the remembered subscription from the API and forgets it.
// It reports false when there is nothing to remove or the API call fails.
func (s *SubscriptionService) Unsubscribe(ctx context.Context) bool {
	sub, ok := s.Current(ctx)
	if !ok {
		return false
	}

	if err := s.client.Unsubscribe(ctx, sub.Endpoint); err != nil {
		s.log.Warn(ctx, "push unsubscribe failed", "endpoint", sub.Endpoint, "error", err)
		return false
	}
	if err := s.meta.Delete(ctx, metadata.KeyPushSubscription); err != nil {
		s.log.Warn(ctx, "failed to forget push subscription", "error", err)
	}
	return true
}

// Current returns the remembered subscription.
func (s *SubscriptionService) Current(ctx context.Context) (models.PushSubscription, bool) {
	data, err := s.meta.Get(ctx, metadata.KeyPushSubscription)
	if err != nil {
		s.log.Warn(ctx, "failed to read push subscription", "error", err)
		return models.PushSubscription{}, false
	}
	if len(data) == 0 {
		return models.PushSubscription{}, false
	}
	var sub models.PushSubscription
	if err := json.Unmarshal(data, &sub); err != nil {
		s.log.Warn(ctx, "stored push subscription is corrupt", "error", err)
		return models.PushSubscription{}, false
	}
	return sub, true
}
