package auth_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/jrsteele09/lms-oauth-gateway/auth"
	"github.com/jrsteele09/lms-oauth-gateway/clients"
	"github.com/jrsteele09/lms-oauth-gateway/oauth2"
	"github.com/jrsteele09/lms-oauth-gateway/sessions"
	"github.com/jrsteele09/lms-oauth-gateway/token"
	"github.com/jrsteele09/lms-oauth-gateway/users"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func authorizeRequest(responseType string) oauth2.AuthorizationRequest {
	return oauth2.AuthorizationRequest{
		APIKey:       testAPIKey,
		RedirectURI:  testRedirectURI,
		ResponseType: responseType,
	}
}

func TestAuthorizeValidation(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	t.Run("missing parameters", func(t *testing.T) {
		for _, mutate := range []func(*oauth2.AuthorizationRequest){
			func(r *oauth2.AuthorizationRequest) { r.APIKey = "" },
			func(r *oauth2.AuthorizationRequest) { r.RedirectURI = "" },
			func(r *oauth2.AuthorizationRequest) { r.ResponseType = "" },
		} {
			req := authorizeRequest("code")
			mutate(&req)
			_, err := f.service.Authorize(ctx, req)
			requireKind(t, err, auth.MissingParameter)
		}
	})

	t.Run("bad response type", func(t *testing.T) {
		_, err := f.service.Authorize(ctx, authorizeRequest("xyz"))
		requireKind(t, err, auth.ResponseType)
	})

	t.Run("unknown client", func(t *testing.T) {
		req := authorizeRequest("code")
		req.APIKey = "hermes"
		_, err := f.service.Authorize(ctx, req)
		requireKind(t, err, auth.LoginFailed)
	})

	t.Run("unregistered redirect", func(t *testing.T) {
		req := authorizeRequest("code")
		req.RedirectURI = "https://evil.example.com/cb"
		_, err := f.service.Authorize(ctx, req)
		requireKind(t, err, auth.LoginFailed)
	})

	t.Run("grant disabled", func(t *testing.T) {
		f.upsertClient(t, func(c *clients.Client) { c.Grants.Implicit = false })
		defer f.upsertClient(t, nil)
		_, err := f.service.Authorize(ctx, authorizeRequest("token"))
		requireKind(t, err, auth.ClientDisabledForGrant)
	})
}

func TestAuthorizeLoginForm(t *testing.T) {
	f := setupTestFixture(t)

	result, err := f.service.Authorize(context.Background(), authorizeRequest("code"))
	require.NoError(t, err)
	require.Equal(t, auth.ActionLogin, result.Action)
	require.Equal(t, &auth.LoginForm{APIKey: testAPIKey, RedirectURI: testRedirectURI, ResponseType: "code"}, result.Login)
}

func TestAuthorizeCodeFlow(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	t.Run("bad credentials", func(t *testing.T) {
		req := authorizeRequest("code")
		req.Username, req.Password = testUsername, "wrong"
		_, err := f.service.Authorize(ctx, req)
		requireKind(t, err, auth.LoginFailed)
	})

	req := authorizeRequest("code")
	req.Username, req.Password = testUsername, testPassword
	result, err := f.service.Authorize(ctx, req)
	require.NoError(t, err)
	require.Equal(t, auth.ActionRedirect, result.Action)

	redirect := parseRedirect(t, result.RedirectURL)
	require.Equal(t, "lms.example.com", redirect.Host)
	require.Equal(t, "1", redirect.Query().Get("tab"), "existing query is kept")
	code := redirect.Query().Get("code")
	require.NotEmpty(t, code)

	tr, err := f.service.Token(ctx, oauth2.TokenRequest{
		GrantType:   "authorization_code",
		APIKey:      testAPIKey,
		APISecret:   testAPISecret,
		Code:        code,
		RedirectURI: testRedirectURI,
	})
	require.NoError(t, err)
	require.NotNil(t, tr.RefreshToken, "authorization code grants refresh by default")

	at, err := f.service.VerifyBearer(ctx, tr.AccessToken)
	require.NoError(t, err)
	require.Equal(t, testUserID, at.UserID)
	require.Equal(t, testAPIKey, at.ClientID)
}

func TestAuthorizeImplicitFlow(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.upsertClient(t, func(c *clients.Client) { c.Refresh.Implicit = true })

	req := authorizeRequest("token")
	req.Username, req.Password = testUsername, testPassword
	result, err := f.service.Authorize(ctx, req)
	require.NoError(t, err)
	require.Equal(t, auth.ActionRedirect, result.Action)

	redirect := parseRedirect(t, result.RedirectURL)
	require.Empty(t, redirect.Query().Get("access_token"))
	fragment, err := url.ParseQuery(redirect.Fragment)
	require.NoError(t, err)
	require.Equal(t, "bearer", fragment.Get("token_type"))
	require.Equal(t, "3600", fragment.Get("expires_in"))
	require.NotEmpty(t, fragment.Get("refresh_token"))

	at, err := f.service.VerifyBearer(ctx, fragment.Get("access_token"))
	require.NoError(t, err)
	require.Equal(t, testUserID, at.UserID)
}

func requireConsentForm(t *testing.T, f *testFixture, req oauth2.AuthorizationRequest) *auth.ConsentForm {
	t.Helper()
	result, err := f.service.Authorize(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, auth.ActionConsent, result.Action)
	require.NotEmpty(t, result.Consent.AuthenticityToken)
	return result.Consent
}

func TestAuthorizeConsent(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.upsertClient(t, func(c *clients.Client) {
		c.ConsentRequired = true
		c.ConsentMessage = "Allow apollon to act for you?"
	})

	req := authorizeRequest("code")
	req.Username, req.Password = testUsername, testPassword
	form := requireConsentForm(t, f, req)
	require.Equal(t, "Allow apollon to act for you?", form.ConsentMessage)

	t.Run("token bound to the request", func(t *testing.T) {
		tampered := authorizeRequest("token")
		tampered.AuthenticityToken = requireConsentForm(t, f, req).AuthenticityToken
		_, err := f.service.Authorize(ctx, tampered)
		requireKind(t, err, auth.TokenInvalid)

		forged := authorizeRequest("code")
		forged.AuthenticityToken = "forged"
		_, err = f.service.Authorize(ctx, forged)
		requireKind(t, err, auth.TokenInvalid)
	})

	approve := authorizeRequest("code")
	approve.AuthenticityToken = form.AuthenticityToken
	result, err := f.service.Authorize(ctx, approve)
	require.NoError(t, err)
	require.Equal(t, auth.ActionRedirect, result.Action)

	consented, err := f.store.Consents.HasConsent(ctx, testAPIKey, testUserID)
	require.NoError(t, err)
	require.True(t, consented)

	t.Run("authenticity token is single use", func(t *testing.T) {
		_, err := f.service.Authorize(ctx, approve)
		requireKind(t, err, auth.TokenInvalid)
	})

	// Recorded consent skips the form.
	result, err = f.service.Authorize(ctx, req)
	require.NoError(t, err)
	require.Equal(t, auth.ActionRedirect, result.Action)
}

// brokenCodes fails every code write.
type brokenCodes struct {
	token.CodeRepo
}

func (brokenCodes) SaveCode(context.Context, *token.AuthorizationCode) error {
	return errors.New("disk full")
}

func TestAuthorizeConsentNotRecordedWhenIssueFails(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.upsertClient(t, func(c *clients.Client) { c.ConsentRequired = true })

	repos := f.store.Repos()
	tokens := repos.Tokens
	tokens.Codes = brokenCodes{CodeRepo: tokens.Codes}
	manager, err := token.New(tokens, token.NewHMACSigner("test-secret"), token.WithNowFunc(f.clock))
	require.NoError(t, err)
	validator, err := users.NewPasswordValidator(repos.Users)
	require.NoError(t, err)
	f.service, err = auth.NewAuthorizationService(auth.Repos{
		Clients:  repos.Clients,
		Consents: repos.Consents,
		Users:    validator,
		Sessions: sessions.NewStoreValidator(repos.Sessions, f.clock),
	}, manager, auth.WithNowTime(f.clock))
	require.NoError(t, err)

	req := authorizeRequest("code")
	req.Username, req.Password = testUsername, testPassword
	approve := authorizeRequest("code")
	approve.AuthenticityToken = requireConsentForm(t, f, req).AuthenticityToken
	_, err = f.service.Authorize(ctx, approve)
	require.Error(t, err)

	consented, err := f.store.Consents.HasConsent(ctx, testAPIKey, testUserID)
	require.NoError(t, err)
	require.False(t, consented)
}

func TestAuthorizeUserAllowList(t *testing.T) {
	f := setupTestFixture(t)
	f.upsertClient(t, func(c *clients.Client) {
		c.UserRestrictionActive = true
		c.AllowedUserIDs = []string{otherUserID}
	})

	req := authorizeRequest("code")
	req.Username, req.Password = testUsername, testPassword
	_, err := f.service.Authorize(context.Background(), req)
	requireKind(t, err, auth.LoginFailed)
}
