package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/router-for-me/authflow/sdk/authflow"
	"github.com/router-for-me/authflow/sdk/authflow/store"
)

func openSQLite(t *testing.T) *store.SQLiteDB {
	t.Helper()
	db, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "authflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) clearableStore {
		return openSQLite(t).Scope("session-1")
	})
}

func TestSQLiteStore_ScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	a, b := db.Scope("a"), db.Scope("b")

	fp, err := authflow.NewFingerprint()
	require.NoError(t, err)
	require.NoError(t, a.Set(ctx, fp))

	_, err = b.Get(ctx)
	assert.ErrorIs(t, err, authflow.ErrFingerprintNotFound)

	require.NoError(t, b.Clear(ctx))
	got, err := a.Get(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(fp))
}
