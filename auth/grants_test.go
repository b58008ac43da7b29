package auth_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/lms-oauth-gateway/auth"
	"github.com/jrsteele09/lms-oauth-gateway/clients"
	"github.com/jrsteele09/lms-oauth-gateway/oauth2"
	"github.com/jrsteele09/lms-oauth-gateway/token"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const racers = 16

func TestTokenGrantType(t *testing.T) {
	f := setupTestFixture(t)
	for _, grantType := range []string{"", "implicit", "device_code"} {
		t.Run("grant "+grantType, func(t *testing.T) {
			_, err := f.service.Token(context.Background(), oauth2.TokenRequest{GrantType: grantType, APIKey: testAPIKey})
			requireKind(t, err, auth.ResponseType)
		})
	}
}

func TestPasswordGrant(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	tests := []struct {
		name string
		req  oauth2.TokenRequest
		kind auth.Kind
	}{
		{"missing api_key", oauth2.TokenRequest{Username: testUsername, Password: testPassword}, auth.MissingParameter},
		{"missing username", oauth2.TokenRequest{APIKey: testAPIKey, Password: testPassword}, auth.MissingParameter},
		{"missing password", oauth2.TokenRequest{APIKey: testAPIKey, Username: testUsername}, auth.MissingParameter},
		{"wrong password", oauth2.TokenRequest{APIKey: testAPIKey, Username: testUsername, Password: "x"}, auth.LoginFailed},
		{"unknown user", oauth2.TokenRequest{APIKey: testAPIKey, Username: "nobody", Password: testPassword}, auth.LoginFailed},
		{"unknown client", oauth2.TokenRequest{APIKey: "hermes", Username: testUsername, Password: testPassword}, auth.LoginFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.GrantType = "password"
			_, err := f.service.Token(ctx, tt.req)
			requireKind(t, err, tt.kind)
		})
	}

	t.Run("success without refresh", func(t *testing.T) {
		tr, err := f.service.Token(ctx, oauth2.TokenRequest{GrantType: "password", APIKey: testAPIKey, Username: testUsername, Password: testPassword})
		require.NoError(t, err)
		require.Equal(t, "bearer", tr.TokenType)
		require.Equal(t, 3600, tr.ExpiresIn)
		require.Nil(t, tr.RefreshToken)

		at, err := f.service.VerifyBearer(ctx, tr.AccessToken)
		require.NoError(t, err)
		require.Equal(t, testUserID, at.UserID)
	})

	t.Run("grant disabled", func(t *testing.T) {
		f.upsertClient(t, func(c *clients.Client) { c.Grants.ResourceOwner = false })
		_, err := f.service.Token(ctx, oauth2.TokenRequest{GrantType: "password", APIKey: testAPIKey, Username: testUsername, Password: testPassword})
		requireKind(t, err, auth.ClientDisabledForGrant)
	})
}

func TestClientCredentialsGrant(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	req := oauth2.TokenRequest{GrantType: "client_credentials", APIKey: testAPIKey, APISecret: testAPISecret}

	t.Run("missing secret", func(t *testing.T) {
		_, err := f.service.Token(ctx, oauth2.TokenRequest{GrantType: "client_credentials", APIKey: testAPIKey})
		requireKind(t, err, auth.MissingParameter)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := f.service.Token(ctx, oauth2.TokenRequest{GrantType: "client_credentials", APIKey: testAPIKey, APISecret: "x"})
		requireKind(t, err, auth.LoginFailed)
	})

	t.Run("bound to the service identity", func(t *testing.T) {
		tr, err := f.service.Token(ctx, req)
		require.NoError(t, err)
		at, err := f.service.VerifyBearer(ctx, tr.AccessToken)
		require.NoError(t, err)
		require.Equal(t, auth.DefaultServiceUser, at.UserID)
	})

	t.Run("bound to the default user when restricted", func(t *testing.T) {
		f.upsertClient(t, func(c *clients.Client) {
			c.UserRestrictionActive = true
			c.DefaultUserID = otherUserID
		})
		tr, err := f.service.Token(ctx, req)
		require.NoError(t, err)
		at, err := f.service.VerifyBearer(ctx, tr.AccessToken)
		require.NoError(t, err)
		require.Equal(t, otherUserID, at.UserID)
	})

	t.Run("restricted without default user", func(t *testing.T) {
		f.upsertClient(t, func(c *clients.Client) { c.UserRestrictionActive = true })
		_, err := f.service.Token(ctx, req)
		requireKind(t, err, auth.ClientDisabledForGrant)
	})

	t.Run("disabled grant needs the right secret first", func(t *testing.T) {
		f.upsertClient(t, func(c *clients.Client) { c.Grants.ClientCredentials = false })
		_, err := f.service.Token(ctx, oauth2.TokenRequest{GrantType: "client_credentials", APIKey: testAPIKey, APISecret: "x"})
		requireKind(t, err, auth.LoginFailed)
		_, err = f.service.Token(ctx, req)
		requireKind(t, err, auth.ClientDisabledForGrant)
	})
}

func TestAuthorizationCodeGrant(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	issue := func(t *testing.T) string {
		t.Helper()
		code, err := f.tokenCreator.IssueCode(ctx, testAPIKey, testUserID, testRedirectURI)
		require.NoError(t, err)
		return code.Code
	}
	request := func(code string) oauth2.TokenRequest {
		return oauth2.TokenRequest{GrantType: "authorization_code", APIKey: testAPIKey, APISecret: testAPISecret, Code: code, RedirectURI: testRedirectURI}
	}

	t.Run("missing redirect_uri", func(t *testing.T) {
		req := request(issue(t))
		req.RedirectURI = ""
		_, err := f.service.Token(ctx, req)
		requireKind(t, err, auth.MissingParameter)
	})

	t.Run("wrong secret keeps the code", func(t *testing.T) {
		code := issue(t)
		req := request(code)
		req.APISecret = "x"
		_, err := f.service.Token(ctx, req)
		requireKind(t, err, auth.LoginFailed)

		_, err = f.service.Token(ctx, request(code))
		require.NoError(t, err)
	})

	t.Run("redirect mismatch", func(t *testing.T) {
		req := request(issue(t))
		req.RedirectURI = "https://lms.example.com/other"
		_, err := f.service.Token(ctx, req)
		requireKind(t, err, auth.TokenInvalid)
	})

	t.Run("sequential reuse", func(t *testing.T) {
		code := issue(t)
		_, err := f.service.Token(ctx, request(code))
		require.NoError(t, err)
		_, err = f.service.Token(ctx, request(code))
		requireKind(t, err, auth.TokenInvalid)
	})

	t.Run("concurrent redemption", func(t *testing.T) {
		code := issue(t)
		var successes atomic.Int32
		var g errgroup.Group
		for range racers {
			g.Go(func() error {
				_, err := f.service.Token(ctx, request(code))
				if err == nil {
					successes.Add(1)
					return nil
				}
				if auth.KindOf(err) == auth.TokenInvalid {
					return nil
				}
				return err
			})
		}
		require.NoError(t, g.Wait())
		require.Equal(t, int32(1), successes.Load())
	})
}

func TestRefreshTokenGrant(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, token.WithRefreshBudget(2))
	f.upsertClient(t, func(c *clients.Client) { c.Refresh.ResourceOwner = true })

	tr, err := f.service.Token(ctx, oauth2.TokenRequest{GrantType: "password", APIKey: testAPIKey, Username: testUsername, Password: testPassword})
	require.NoError(t, err)
	require.NotNil(t, tr.RefreshToken)
	refresh := func(rt string) (*oauth2.TokenResponse, error) {
		return f.service.Token(ctx, oauth2.TokenRequest{GrantType: "refresh_token", RefreshToken: rt})
	}

	t.Run("missing token", func(t *testing.T) {
		_, err := refresh("")
		requireKind(t, err, auth.MissingParameter)
	})

	first, err := refresh(*tr.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, first.RefreshToken)
	require.NotEqual(t, *tr.RefreshToken, *first.RefreshToken)

	at, err := f.service.VerifyBearer(ctx, first.AccessToken)
	require.NoError(t, err)
	require.Equal(t, testUserID, at.UserID)

	_, err = refresh(*tr.RefreshToken)
	requireKind(t, err, auth.TokenInvalid)

	second, err := refresh(*first.RefreshToken)
	require.NoError(t, err)

	_, err = refresh(*second.RefreshToken)
	requireKind(t, err, auth.TokenInvalid)

	t.Run("concurrent use of one token", func(t *testing.T) {
		tr, err := f.service.Token(ctx, oauth2.TokenRequest{GrantType: "password", APIKey: testAPIKey, Username: otherUsername, Password: testPassword})
		require.NoError(t, err)

		var successes atomic.Int32
		var g errgroup.Group
		for range racers {
			g.Go(func() error {
				_, err := refresh(*tr.RefreshToken)
				if err == nil {
					successes.Add(1)
					return nil
				}
				if auth.KindOf(err) == auth.TokenInvalid {
					return nil
				}
				return err
			})
		}
		require.NoError(t, g.Wait())
		require.Equal(t, int32(1), successes.Load())
	})

	t.Run("client removed", func(t *testing.T) {
		tr, err := f.service.Token(ctx, oauth2.TokenRequest{GrantType: "password", APIKey: testAPIKey, Username: testUsername, Password: testPassword})
		require.NoError(t, err)
		require.NoError(t, f.store.Clients.Delete(ctx, testAPIKey))
		_, err = refresh(*tr.RefreshToken)
		requireKind(t, err, auth.TokenInvalid)
	})
}
