package token_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/lms-oauth-gateway/token"
	"github.com/stretchr/testify/require"
)

func TestAuthenticityToken(t *testing.T) {
	ctx := context.Background()
	m, c := newManager(t, token.WithAuthenticityExpiry(5*time.Minute))
	grant := token.ConsentGrant{ClientID: "apollon", UserID: "6", RedirectURI: "https://lms.example.com/cb", ResponseType: "code"}

	raw, err := m.IssueAuthenticityToken(grant)
	require.NoError(t, err)

	got, err := m.ConsumeAuthenticityToken(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, grant, *got)

	t.Run("single use", func(t *testing.T) {
		_, err := m.ConsumeAuthenticityToken(ctx, raw)
		require.ErrorIs(t, err, token.ErrTokenInvalid)
	})

	t.Run("cannot be used as a bearer", func(t *testing.T) {
		_, err := m.VerifyAccessToken(ctx, raw)
		require.ErrorIs(t, err, token.ErrTokenInvalid)
	})

	t.Run("access token is not an authenticity token", func(t *testing.T) {
		at, err := m.IssueAccessToken("apollon", "6")
		require.NoError(t, err)
		_, err = m.ConsumeAuthenticityToken(ctx, at.Token)
		require.ErrorIs(t, err, token.ErrTokenInvalid)
	})

	t.Run("expires", func(t *testing.T) {
		unused, err := m.IssueAuthenticityToken(grant)
		require.NoError(t, err)
		c.Advance(5 * time.Minute)
		_, err = m.ConsumeAuthenticityToken(ctx, unused)
		require.ErrorIs(t, err, token.ErrTokenInvalid)
	})
}
