// Package store is the local store facade used by the sync engine, the
// story service and the CLI.
//
// The store fails open: read failures are logged and surface as an empty,
// non-nil result together with an error wrapping ErrDegraded, write failures
// are logged and returned the same way. Nothing in this package panics on
// storage trouble, so callers can treat the local store as an optional
// durability layer and keep working when it is unavailable.
//
// Collections:
//
//   - stories   snapshot of the remote feed, keyed by server id, last write wins
//   - outbox    pending submissions, keyed by a strictly increasing sequence
//   - favorites user bookmarks, never touched by network activity
package store
