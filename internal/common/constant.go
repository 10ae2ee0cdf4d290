// Package common contains shared constants, sentinel errors and small helpers
// used across storykeeper components.
package common

const (
	// AuthorizationHeaderName carries the bearer token on outbound API requests.
	AuthorizationHeaderName = "Authorization"

	// CacheStatusHeaderName marks responses served from the local response cache.
	CacheStatusHeaderName = "X-Storykeeper-Cache"

	// CacheStatusHit is the CacheStatusHeaderName value for cached responses.
	CacheStatusHit = "hit"
)
