// Package stories provides the client-side persistence layer for the story
// cache, the snapshot of the remote feed kept for offline reading.
//
// Rows are keyed by the server-assigned story id. Writes replace any existing
// row with the same id (last write wins). The repository is bound to a
// dbx.DBTX so callers can run it inside a transaction:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    return stories.NewSQLiteRepository(tx).Upsert(ctx, s)
//	})
package stories
