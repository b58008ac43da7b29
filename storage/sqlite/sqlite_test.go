package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/lms-oauth-gateway/storage"
	"github.com/jrsteele09/lms-oauth-gateway/storage/sqlite"
	"github.com/jrsteele09/lms-oauth-gateway/storage/storagetest"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Repos {
		return openStore(t).Repos()
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := openStore(t)
	require.NoError(t, store.Migrate(context.Background()))

	var tables int
	require.NoError(t, store.DB().Get(&tables, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'oauth2_grants'`))
	require.Equal(t, 1, tables)
}
