package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransactionCommit(t *testing.T) {
	db := openTestDB(t)

	tx := db.NewTransaction("test")
	require.NoError(t, tx.Begin())
	seedWorld(t, db, "Alpha", "127.0.0.1", 7172)
	require.NoError(t, tx.Commit())
	tx.Close()

	worldID, err := db.GetWorldID("Alpha")
	require.NoError(t, err)
	require.NotZero(t, worldID)
}

func TestTransactionRollbackOnClose(t *testing.T) {
	db := openTestDB(t)

	tx := db.NewTransaction("test")
	require.NoError(t, tx.Begin())
	seedWorld(t, db, "Alpha", "127.0.0.1", 7172)
	tx.Close()

	// The scope went out of range without Commit: no trace must remain.
	worldID, err := db.GetWorldID("Alpha")
	require.NoError(t, err)
	require.Zero(t, worldID)
}

func TestTransactionMisuse(t *testing.T) {
	db := openTestDB(t)

	tx := db.NewTransaction("test")
	require.Error(t, tx.Commit(), "commit before begin")

	require.NoError(t, tx.Begin())
	require.Error(t, tx.Begin(), "double begin")
	require.NoError(t, tx.Commit())
	require.Error(t, tx.Commit(), "double commit")
	tx.Close()
}
