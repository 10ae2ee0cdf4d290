package metadata

import (
	"context"
)

// Repository is a small key/value table for client state such as the
// session token and the last successful refresh time. Keys are grouped by a
// dotted prefix ("session.", "push.") so a whole group can be dropped at once.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Prefixed(ctx context.Context, prefix string) (map[string][]byte, error)
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

const (
	SessionPrefix = "session."
	PushPrefix    = "push."
)

// Well-known keys.
const (
	KeyToken            = SessionPrefix + "token"
	KeyUserName         = SessionPrefix + "name"
	KeyUserID           = SessionPrefix + "user_id"
	KeyLastRefresh      = "stories.last_refresh"
	KeyPushSubscription = PushPrefix + "subscription"
)
