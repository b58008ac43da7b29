package bolt_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/lms-oauth-gateway/storage"
	"github.com/jrsteele09/lms-oauth-gateway/storage/bolt"
	"github.com/jrsteele09/lms-oauth-gateway/storage/storagetest"
	"github.com/jrsteele09/lms-oauth-gateway/token"
	"github.com/jrsteele09/lms-oauth-gateway/users"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, path string) *bolt.Store {
	t.Helper()
	store, err := bolt.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBoltRepos(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Repos {
		return openStore(t, filepath.Join(t.TempDir(), "state", "gateway.db")).Repos()
	})
}

func TestStateSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gateway.db")
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	store, err := bolt.Open(path)
	require.NoError(t, err)
	repos := store.Repos()
	require.NoError(t, repos.Users.Upsert(ctx, &users.User{ID: "6", Username: "homer", PasswordHash: "hash"}))
	_, err = repos.Tokens.Refresh.SaveRefresh(ctx, &token.RefreshRecord{
		Token: "rt-1", ClientID: "apollon", UserID: "6", NumRefreshLeft: 3, IssuedAt: now, ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	repos = openStore(t, path).Repos()
	user, err := repos.Users.GetByUsername(ctx, "homer")
	require.NoError(t, err)
	require.Equal(t, "hash", user.PasswordHash)

	rec, err := repos.Tokens.Refresh.GetRefresh(ctx, "rt-1")
	require.NoError(t, err)
	require.Equal(t, "rt-1", rec.Token)
	require.Equal(t, 3, rec.NumRefreshLeft)
}
