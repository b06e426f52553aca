package sqlutil

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openCounter(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE counter (n INTEGER NOT NULL); INSERT INTO counter (n) VALUES (0);`)
	require.NoError(t, err)
	return db
}

func counterValue(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT n FROM counter`).Scan(&n))
	return n
}

func TestInTx_Commits(t *testing.T) {
	db := openCounter(t)

	err := InTx(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE counter SET n = n + 1`)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 1, counterValue(t, db))
}

func TestInTx_RollsBackOnError(t *testing.T) {
	db := openCounter(t)
	boom := errors.New("boom")

	err := InTx(context.Background(), db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE counter SET n = n + 1`); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, counterValue(t, db))
}

func TestInTx_RollsBackOnPanic(t *testing.T) {
	db := openCounter(t)

	assert.Panics(t, func() {
		_ = InTx(context.Background(), db, func(tx *sql.Tx) error {
			_, _ = tx.Exec(`UPDATE counter SET n = n + 1`)
			panic("boom")
		})
	})
	assert.Equal(t, 0, counterValue(t, db))
}
