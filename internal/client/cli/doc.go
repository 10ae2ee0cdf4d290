// Package cli provides the interactive storykeeper command-line client.
//
// It wires configuration, the local store, the API client and an interactive
// REPL that keeps working offline: the feed falls back to cached stories and
// new stories are queued in the outbox, which is uploaded by a background
// sync whenever the connectivity watcher sees the API come back.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See runREPL for the command list.
package cli
