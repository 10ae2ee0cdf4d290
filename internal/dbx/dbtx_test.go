package dbx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS stories (id TEXT PRIMARY KEY, name TEXT NOT NULL);`)
	require.NoError(t, err)
	return db
}

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM stories`).Scan(&n))
	return n
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db := setupDB(t)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO stories(id, name) VALUES ('a', 'ok')`)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 1, countRows(t, db), "must commit on success")
}

func TestWithTx_RollbackOnFnError(t *testing.T) {
	db := setupDB(t)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, e := tx.ExecContext(ctx, `INSERT INTO stories(id, name) VALUES ('a', 'fail')`)
		require.NoError(t, e)
		return errors.New("boom")
	})
	require.Error(t, err)

	require.Equal(t, 0, countRows(t, db), "must rollback when fn returns error")
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := setupDB(t)

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic to propagate")
		}
		require.Equal(t, 0, countRows(t, db), "must rollback on panic")
	}()

	_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, e := tx.ExecContext(ctx, `INSERT INTO stories(id, name) VALUES ('a', 'panic')`)
		require.NoError(t, e)
		panic("kaput")
	})
}

func TestWithTx_BeginError(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Close())

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		return nil
	})
	require.Error(t, err, "begin should fail when DB is closed")
}

func TestWithSavepoint_IsolatesFailedStatement(t *testing.T) {
	db := setupDB(t)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		require.NoError(t, WithSavepoint(ctx, tx, "row_a", func(ctx context.Context) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO stories(id, name) VALUES ('a', 'first')`)
			return err
		}))

		// duplicate primary key
		bad := WithSavepoint(ctx, tx, "row_dup", func(ctx context.Context) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO stories(id, name) VALUES ('a', 'dup')`)
			return err
		})
		require.Error(t, bad)

		return WithSavepoint(ctx, tx, "row_b", func(ctx context.Context) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO stories(id, name) VALUES ('b', 'second')`)
			return err
		})
	})
	require.NoError(t, err)
	require.Equal(t, 2, countRows(t, db))
}

func TestWithSavepoint_FnErrorReturnedUnchanged(t *testing.T) {
	db := setupDB(t)
	sentinel := errors.New("row failed")

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		got := WithSavepoint(ctx, tx, "sp", func(ctx context.Context) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO stories(id, name) VALUES ('x', 'gone')`)
			require.NoError(t, err)
			return sentinel
		})
		require.ErrorIs(t, got, sentinel)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 0, countRows(t, db), "work since the savepoint is undone")
}

func TestWithSavepoint_RejectsBadName(t *testing.T) {
	db := setupDB(t)

	err := WithSavepoint(context.Background(), db, "x; DROP TABLE stories", func(ctx context.Context) error {
		return nil
	})
	require.Error(t, err)
}
