// Package swcache is the response cache that sits between the client and the
// network, playing the role a service worker plays in a browser.
//
// Transport is an http.RoundTripper. Every request is routed to one of three
// strategies, first match wins:
//
//  1. API hosts use network-first. A good network answer is copied into the
//     runtime cache; when the network fails the cached copy is served.
//  2. Navigations use cache-first. When neither the cache nor the network can
//     answer, the cached app shell is served so the application still boots.
//  3. Everything else (static assets) uses cache-first, storing what it
//     fetches in the runtime cache.
//
// Responses served from cache carry the X-Storykeeper-Cache: hit header.
//
// Cache names embed a version token. Install pre-populates the shell cache,
// Activate drops caches left behind by older versions and Purge trims the
// runtime cache by age.
package swcache
