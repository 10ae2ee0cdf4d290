package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/client/models"
	"github.com/dmitrijs2005/storykeeper/internal/common"
)

// DefaultBaseURL is the public story API.
const DefaultBaseURL = "https://story-api.dicoding.dev/v1"

const defaultTimeout = 15 * time.Second

// HTTPClient implements Client over the story REST API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	timeout time.Duration
}

type Option func(*HTTPClient)

// WithHTTPClient sets the underlying client, typically one whose transport is
// the response cache.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.http = c }
}

func WithTokenSource(ts TokenSource) Option {
	return func(h *HTTPClient) { h.tokens = ts }
}

// WithTimeout bounds every request; zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTPClient) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the API root without a trailing slash.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

type envelope struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

type loginResponse struct {
	envelope
	LoginResult models.Session `json:"loginResult"`
}

type storiesResponse struct {
	envelope
	ListStory []models.Story `json:"listStory"`
}

// vapidResponse is the bare {"key": ...} object served without the envelope.
type vapidResponse struct {
	Key string `json:"key"`
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (models.Session, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return models.Session{}, err
	}
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/login", "application/json", bytes.NewReader(body), false, &resp); err != nil {
		return models.Session{}, err
	}
	if !resp.LoginResult.Valid() {
		return models.Session{}, fmt.Errorf("%w: login response carries no token", ErrRemote)
	}
	return resp.LoginResult, nil
}

// GetStories fetches the feed including stories with a location.
func (c *HTTPClient) GetStories(ctx context.Context) (Feed, error) {
	var resp storiesResponse
	h, err := c.send(ctx, http.MethodGet, "/stories?location=1", "", nil, true, &resp)
	if err != nil {
		return Feed{}, err
	}
	if resp.ListStory == nil {
		resp.ListStory = []models.Story{}
	}
	return Feed{
		Stories: resp.ListStory,
		Cached:  h.Get(common.CacheStatusHeaderName) == common.CacheStatusHit,
	}, nil
}

// AddStory uploads a story as multipart form data. Coordinates are sent only
// when present.
func (c *HTTPClient) AddStory(ctx context.Context, s models.NewStory) error {
	body, contentType, err := encodeStory(s)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/stories", contentType, body, true, &envelope{})
}

func (c *HTTPClient) GetVapidPublicKey(ctx context.Context) (string, error) {
	var resp vapidResponse
	if err := c.do(ctx, http.MethodGet, "/vapidPublicKey", "", nil, false, &resp); err != nil {
		return "", err
	}
	if resp.Key == "" {
		return "", fmt.Errorf("%w: empty vapid key", ErrRemote)
	}
	return resp.Key, nil
}

func (c *HTTPClient) Subscribe(ctx context.Context, sub models.PushSubscription) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/notifications/subscribe", "application/json", bytes.NewReader(body), true, &envelope{})
}

func (c *HTTPClient) Unsubscribe(ctx context.Context, endpoint string) error {
	body, err := json.Marshal(map[string]string{"endpoint": endpoint})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, "/notifications/subscribe", "application/json", bytes.NewReader(body), true, &envelope{})
}

// Ping reports whether the API host is reachable. Any answer produced by the
// network counts, whatever its status below 500; an answer replayed from the
// response cache does not.
func (c *HTTPClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.Header.Get(common.CacheStatusHeaderName) == common.CacheStatusHit {
		return ErrUnavailable
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return ErrUnavailable
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path, contentType string, body io.Reader, auth bool, out any) error {
	_, err := c.send(ctx, method, path, contentType, body, auth, out)
	return err
}

// send performs the call and returns the response headers alongside the
// decoding result.
func (c *HTTPClient) send(ctx context.Context, method, path, contentType string, body io.Reader, auth bool, out any) (http.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	if auth && c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get token: %w", err)
		}
		if token != "" {
			req.Header.Set(common.AuthorizationHeaderName, "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, mapTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mapTransportError(err)
	}
	return resp.Header, mapResponse(resp.StatusCode, raw, out)
}

func mapTransportError(err error) error {
	if err == nil {
		return nil
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		err = uerr.Err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// mapResponse decodes the API envelope and converts failures to sentinels.
func mapResponse(status int, raw []byte, out any) error {
	var env envelope
	_ = json.Unmarshal(raw, &env)

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, messageOr(env.Message, http.StatusText(status)))
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d", ErrUnavailable, status)
	case status >= http.StatusBadRequest, env.Error:
		return fmt.Errorf("%w: %s", ErrRemote, messageOr(env.Message, http.StatusText(status)))
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func messageOr(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}

func encodeStory(s models.NewStory) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("description", s.Description); err != nil {
		return nil, "", err
	}

	if len(s.Photo) > 0 {
		contentType := s.PhotoType
		if contentType == "" {
			contentType = http.DetectContentType(s.Photo)
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename="%s"`, photoFileName(contentType)))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(s.Photo); err != nil {
			return nil, "", err
		}
	}

	if s.Lat != nil && s.Lon != nil {
		if err := w.WriteField("lat", strconv.FormatFloat(*s.Lat, 'f', -1, 64)); err != nil {
			return nil, "", err
		}
		if err := w.WriteField("lon", strconv.FormatFloat(*s.Lon, 'f', -1, 64)); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func photoFileName(contentType string) string {
	switch mt, _, _ := mime.ParseMediaType(contentType); mt {
	case "image/jpeg":
		return "photo.jpg"
	case "image/gif":
		return "photo.gif"
	case "image/webp":
		return "photo.webp"
	default:
		return "photo.png"
	}
}
