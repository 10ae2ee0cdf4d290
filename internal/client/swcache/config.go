package swcache

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	DefaultShellCache   = "storyapp-shell-v1"
	DefaultRuntimeCache = "storyapp-runtime-v1"
	DefaultShellPath    = "/index.html"
)

// DefaultPrecache lists the app shell resources stored at install time.
var DefaultPrecache = []string{"/index.html", "/favicon.png", "/manifest.json"}

type Config struct {
	ShellCache   string
	RuntimeCache string
	// APIHosts are host[:port] values routed network-first.
	APIHosts []string
	// ShellURL is served for navigations that can be answered neither from
	// cache nor from the network. Relative values resolve against Origin.
	ShellURL string
	// Precache entries are stored in the shell cache by Install. Relative
	// values resolve against Origin.
	Precache []string
	// Origin is the web application origin, e.g. https://stories.example.
	Origin string
	// DiscoverAssets makes Install also store same-origin scripts, styles
	// and images referenced by the shell document.
	DiscoverAssets bool
}

// DefaultConfig returns the stock configuration for an application served
// from origin talking to the API at apiBaseURL.
func DefaultConfig(origin, apiBaseURL string) Config {
	c := Config{
		ShellCache:   DefaultShellCache,
		RuntimeCache: DefaultRuntimeCache,
		ShellURL:     DefaultShellPath,
		Precache:     append([]string(nil), DefaultPrecache...),
		Origin:       origin,
	}
	if u, err := url.Parse(apiBaseURL); err == nil && u.Host != "" {
		c.APIHosts = []string{u.Host}
	}
	return c
}

type resolved struct {
	Config
	origin   *url.URL
	shellURL string
	precache []string
	apiHosts map[string]struct{}
}

func (c Config) resolve() (*resolved, error) {
	if c.ShellCache == "" || c.RuntimeCache == "" {
		return nil, fmt.Errorf("swcache: cache names are required")
	}
	if c.ShellCache == c.RuntimeCache {
		return nil, fmt.Errorf("swcache: shell and runtime caches must differ")
	}

	r := &resolved{Config: c, apiHosts: make(map[string]struct{}, len(c.APIHosts))}
	for _, h := range c.APIHosts {
		r.apiHosts[strings.ToLower(h)] = struct{}{}
	}

	if c.Origin != "" {
		u, err := url.Parse(c.Origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("swcache: invalid origin %q", c.Origin)
		}
		r.origin = u
	}

	var err error
	if c.ShellURL != "" {
		if r.shellURL, err = r.abs(c.ShellURL); err != nil {
			return nil, err
		}
	}
	for _, p := range c.Precache {
		u, err := r.abs(p)
		if err != nil {
			return nil, err
		}
		r.precache = append(r.precache, u)
	}
	return r, nil
}

// abs resolves ref against the origin and returns a cache key URL.
func (r *resolved) abs(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("swcache: invalid url %q: %w", ref, err)
	}
	if !u.IsAbs() {
		if r.origin == nil {
			return "", fmt.Errorf("swcache: relative url %q needs an origin", ref)
		}
		u = r.origin.ResolveReference(u)
	}
	return cacheKey(u), nil
}

func (r *resolved) sameOrigin(u *url.URL) bool {
	return r.origin != nil && strings.EqualFold(u.Scheme, r.origin.Scheme) && strings.EqualFold(u.Host, r.origin.Host)
}

func (r *resolved) isAPI(u *url.URL) bool {
	_, ok := r.apiHosts[strings.ToLower(u.Host)]
	return ok
}

// cacheKey is the absolute URL without fragment.
func cacheKey(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}
