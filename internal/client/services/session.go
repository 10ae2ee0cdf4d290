package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/storykeeper/internal/client/client"
	"github.com/dmitrijs2005/storykeeper/internal/client/models"
	"github.com/dmitrijs2005/storykeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/storykeeper/internal/common"
	"github.com/dmitrijs2005/storykeeper/internal/dbx"
)

// SessionService holds the authenticated user context.
//
// Contract:
//   - Login: authenticate against the API and persist token and display name.
//   - Token: current bearer token, "" when logged out (implements client.TokenSource).
//   - Current: the persisted session.
//   - Expired: whether the token's exp claim is in the past (unverified read).
//   - Logout: forget the session and drop the replies cached for it.
type SessionService interface {
	Login(ctx context.Context, email, password string) (models.Session, error)
	Token(ctx context.Context) (string, error)
	Current(ctx context.Context) (models.Session, error)
	Expired(ctx context.Context) (bool, error)
	Logout(ctx context.Context) error
}

// ResponseCache holds API replies fetched with the session's token.
type ResponseCache interface {
	ClearRuntime(ctx context.Context) (int64, error)
}

type SessionOption func(*sessionService)

// WithResponseCache makes Logout clear cache.
func WithResponseCache(cache ResponseCache) SessionOption {
	return func(s *sessionService) { s.cache = cache }
}

type sessionService struct {
	client client.Client
	db     *sql.DB
	cache  ResponseCache
	now    func() time.Time

	mu     sync.Mutex
	cached *models.Session
}

// NewSessionService constructs a SessionService bound to the API client and DB.
func NewSessionService(c client.Client, db *sql.DB, opts ...SessionOption) SessionService {
	s := &sessionService{client: c, db: db, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *sessionService) Login(ctx context.Context, email, password string) (models.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return models.Session{}, common.ErrEmptyCredential
	}

	sess, err := s.client.Login(ctx, email, password)
	if err != nil {
		return models.Session{}, fmt.Errorf("login error: %w", err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Set(ctx, metadata.KeyToken, []byte(sess.Token)); err != nil {
			return err
		}
		if err := repo.Set(ctx, metadata.KeyUserName, []byte(sess.Name)); err != nil {
			return err
		}
		return repo.Set(ctx, metadata.KeyUserID, []byte(sess.UserID))
	})
	if err != nil {
		return models.Session{}, fmt.Errorf("session saving error: %w", err)
	}

	s.mu.Lock()
	s.cached = &sess
	s.mu.Unlock()
	return sess, nil
}

func (s *sessionService) Current(ctx context.Context) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return *s.cached, nil
	}

	repo := metadata.NewSQLiteRepository(s.db)
	var sess models.Session
	var err error
	if sess.Token, err = metadata.GetString(ctx, repo, metadata.KeyToken); err != nil {
		return models.Session{}, err
	}
	if sess.Name, err = metadata.GetString(ctx, repo, metadata.KeyUserName); err != nil {
		return models.Session{}, err
	}
	if sess.UserID, err = metadata.GetString(ctx, repo, metadata.KeyUserID); err != nil {
		return models.Session{}, err
	}
	if sess.Valid() {
		s.cached = &sess
	}
	return sess, nil
}

func (s *sessionService) Token(ctx context.Context) (string, error) {
	sess, err := s.Current(ctx)
	if err != nil {
		return "", err
	}
	return sess.Token, nil
}

// Expired reports common.ErrNotLoggedIn when there is no token. Tokens that
// are not JWTs, or carry no exp claim, never expire from the client's view.
func (s *sessionService) Expired(ctx context.Context) (bool, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return false, err
	}
	if token == "" {
		return false, common.ErrNotLoggedIn
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false, nil
	}
	if claims.ExpiresAt == nil {
		return false, nil
	}
	return !s.now().Before(claims.ExpiresAt.Time), nil
}

func (s *sessionService) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()

	_, err := metadata.NewSQLiteRepository(s.db).DeletePrefix(ctx, metadata.SessionPrefix)
	if err != nil {
		err = fmt.Errorf("session removal error: %w", err)
	}
	if s.cache != nil {
		if _, cerr := s.cache.ClearRuntime(ctx); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}

// IsAuthError reports whether err means the session must be renewed.
func IsAuthError(err error) bool {
	return errors.Is(err, client.ErrUnauthorized) || errors.Is(err, common.ErrNotLoggedIn)
}
