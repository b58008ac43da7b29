package auth_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/jrsteele09/lms-oauth-gateway/auth"
	"github.com/jrsteele09/lms-oauth-gateway/clients"
	"github.com/jrsteele09/lms-oauth-gateway/oauth2"
	"github.com/jrsteele09/lms-oauth-gateway/sessions"
	"github.com/jrsteele09/lms-oauth-gateway/storage/memory"
	"github.com/jrsteele09/lms-oauth-gateway/token"
	"github.com/jrsteele09/lms-oauth-gateway/users"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey      = "apollon"
	testAPISecret   = "apollon-secret"
	testRedirectURI = "https://lms.example.com/cb?tab=1"
	testUserID      = "6"
	testUsername    = "root"
	testPassword    = "homer"
	otherUserID     = "13"
	otherUsername   = "student"
)

type testFixture struct {
	store        *memory.Store
	tokenCreator *token.Manager
	service      *auth.AuthorizationService
	now          time.Time
}

func (f *testFixture) clock() time.Time { return f.now }

func (f *testFixture) upsertClient(t *testing.T, mutate func(c *clients.Client)) {
	t.Helper()
	client := &clients.Client{
		APIKey:      testAPIKey,
		APISecret:   testAPISecret,
		RedirectURI: testRedirectURI,
		Grants:      clients.DefaultGrantFlags(),
		Refresh:     clients.DefaultRefreshFlags(),
	}
	if mutate != nil {
		mutate(client)
	}
	require.NoError(t, f.store.Clients.Upsert(context.Background(), client))
}

func setupTestFixture(t *testing.T, options ...token.ManagerOption) *testFixture {
	t.Helper()
	ctx := context.Background()

	f := &testFixture{store: memory.New(), now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	repos := f.store.Repos()

	hash, err := users.HashPassword(testPassword)
	require.NoError(t, err)
	require.NoError(t, repos.Users.Upsert(ctx, &users.User{ID: testUserID, Username: testUsername, PasswordHash: hash}))
	require.NoError(t, repos.Users.Upsert(ctx, &users.User{ID: otherUserID, Username: otherUsername, PasswordHash: hash}))
	require.NoError(t, repos.Sessions.Upsert(ctx, &sessions.Session{
		SessionID: "sid-1", UserID: testUserID, RToken: "rtoken-1", ExpiresAt: f.now.Add(time.Hour),
	}))
	f.upsertClient(t, nil)

	options = append([]token.ManagerOption{token.WithNowFunc(f.clock)}, options...)
	f.tokenCreator, err = token.New(repos.Tokens, token.NewHMACSigner("test-secret"), options...)
	require.NoError(t, err)

	validator, err := users.NewPasswordValidator(repos.Users)
	require.NoError(t, err)

	f.service, err = auth.NewAuthorizationService(auth.Repos{
		Clients:  repos.Clients,
		Consents: repos.Consents,
		Users:    validator,
		Sessions: sessions.NewStoreValidator(repos.Sessions, f.clock),
	}, f.tokenCreator, auth.WithNowTime(f.clock))
	require.NoError(t, err)
	return f
}

func requireKind(t *testing.T, err error, kind auth.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, auth.KindOf(err), err.Error())
}

func TestNewAuthorizationService(t *testing.T) {
	_, err := auth.NewAuthorizationService(auth.Repos{}, nil)
	require.Error(t, err)
}

func TestKind(t *testing.T) {
	tests := []struct {
		kind   auth.Kind
		status int
	}{
		{auth.MissingParameter, 422},
		{auth.ResponseType, 400},
		{auth.LoginFailed, 401},
		{auth.TokenInvalid, 401},
		{auth.ClientDisabledForGrant, 403},
		{auth.Unavailable, 503},
		{auth.Internal, 500},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			require.Equal(t, tt.status, tt.kind.HTTPStatus())
		})
	}

	require.Equal(t, auth.Unavailable, auth.KindOf(context.DeadlineExceeded))
	require.Equal(t, auth.Internal, auth.KindOf(context.Canceled))
	require.Equal(t, "internal server error", auth.PublicMessage(context.Canceled))
}

func parseRedirect(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

// stalledClients blocks every lookup until the caller's context ends.
type stalledClients struct {
	clients.Repo
}

func (stalledClients) Get(ctx context.Context, _ string) (*clients.Client, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCallTimeoutClientLookup(t *testing.T) {
	f := setupTestFixture(t)
	validator, err := users.NewPasswordValidator(f.store.Users)
	require.NoError(t, err)

	service, err := auth.NewAuthorizationService(auth.Repos{
		Clients:  stalledClients{Repo: f.store.Clients},
		Consents: f.store.Consents,
		Users:    validator,
		Sessions: sessions.NewStoreValidator(f.store.Sessions, f.clock),
	}, f.tokenCreator, auth.WithCallTimeout(20*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = service.Token(context.Background(), oauth2.TokenRequest{
		GrantType: "client_credentials",
		APIKey:    testAPIKey,
		APISecret: testAPISecret,
	})
	requireKind(t, err, auth.Unavailable)
	require.Equal(t, "service temporarily unavailable", auth.PublicMessage(err))
	require.Less(t, time.Since(start), time.Second)
}
