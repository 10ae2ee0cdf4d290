package client

import (
	"context"

	"github.com/dmitrijs2005/storykeeper/internal/client/models"
)

// Client is the remote story API as used by the offline layer.
type Client interface {
	Login(ctx context.Context, email, password string) (models.Session, error)
	GetStories(ctx context.Context) (Feed, error)
	AddStory(ctx context.Context, s models.NewStory) error
	GetVapidPublicKey(ctx context.Context) (string, error)
	Subscribe(ctx context.Context, sub models.PushSubscription) error
	Unsubscribe(ctx context.Context, endpoint string) error
	Ping(ctx context.Context) error
}

// Feed is a story listing. Cached is set when the response cache answered
// instead of the API.
type Feed struct {
	Stories []models.Story
	Cached  bool
}

// TokenSource supplies the bearer token for authenticated calls.
// An empty token means the request is sent unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }
