// Package client contains the remote story API client and local database
// bootstrap for storykeeper.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Client interface): Login,
//     GetStories, AddStory, GetVapidPublicKey, Subscribe, Unsubscribe, Ping.
//  2. A concrete HTTP implementation (see HTTPClient) that attaches the bearer
//     token from an explicit TokenSource, bounds every call with a timeout,
//     and maps failures to sentinel errors.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations) opening an
//     SQLite database and applying embedded goose migrations.
//
// # Error Handling
//
// Common conditions are exposed as sentinel errors that callers can match with
// errors.Is: ErrUnavailable (transport failures, timeouts, 5xx, responses
// served from the offline cache), ErrUnauthorized (401/403) and ErrRemote
// (the API rejected the request; the message is kept in the wrapped error).
//
// # Offline behaviour
//
// HTTPClient is usually built over an *http.Client whose transport is the
// response cache (see package swcache). GetStories may therefore succeed while
// offline with the last cached listing, reported through Feed.Cached. Ping treats a cached answer as
// unavailability so connectivity checks are never fooled by the cache.
package client
