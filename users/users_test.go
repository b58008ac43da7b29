package users_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/lms-oauth-gateway/storage/memory"
	"github.com/jrsteele09/lms-oauth-gateway/users"
	"github.com/stretchr/testify/require"
)

func TestPasswordValidator(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepo()

	hash, err := users.HashPassword("homer")
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, &users.User{ID: "6", Username: "root", PasswordHash: hash}))
	require.NoError(t, repo.Upsert(ctx, &users.User{ID: "9", Username: "blocked", PasswordHash: hash, Blocked: true}))

	validator, err := users.NewPasswordValidator(repo)
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		userID, err := validator.VerifyUserCredentials(ctx, "root", "homer")
		require.NoError(t, err)
		require.Equal(t, "6", userID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := validator.VerifyUserCredentials(ctx, "root", "marge")
		require.ErrorIs(t, err, users.ErrLoginFailed)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := validator.VerifyUserCredentials(ctx, "bart", "homer")
		require.ErrorIs(t, err, users.ErrLoginFailed)
	})

	t.Run("blocked user", func(t *testing.T) {
		_, err := validator.VerifyUserCredentials(ctx, "blocked", "homer")
		require.ErrorIs(t, err, users.ErrLoginFailed)
	})

	t.Run("nil repo", func(t *testing.T) {
		_, err := users.NewPasswordValidator(nil)
		require.Error(t, err)
	})
}

func TestHashPassword(t *testing.T) {
	hash, err := users.HashPassword("secret")
	require.NoError(t, err)
	require.NotEqual(t, "secret", hash)
	require.True(t, users.CheckPasswordHash("secret", hash))
	require.False(t, users.CheckPasswordHash("Secret", hash))
}
