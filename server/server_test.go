package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/lms-oauth-gateway/auth"
	"github.com/jrsteele09/lms-oauth-gateway/clients"
	"github.com/jrsteele09/lms-oauth-gateway/internal/config"
	"github.com/jrsteele09/lms-oauth-gateway/internal/metrics"
	"github.com/jrsteele09/lms-oauth-gateway/permissions"
	"github.com/jrsteele09/lms-oauth-gateway/server"
	"github.com/jrsteele09/lms-oauth-gateway/sessions"
	"github.com/jrsteele09/lms-oauth-gateway/storage/memory"
	"github.com/jrsteele09/lms-oauth-gateway/token"
	"github.com/jrsteele09/lms-oauth-gateway/users"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey      = "apollon"
	testAPISecret   = "apollon-secret"
	testRedirectURI = "https://lms.example.com/cb"
	testUserID      = "6"
	testUsername    = "root"
	testPassword    = "homer"
	testOrigin      = "https://lms.example.com"
)

type testFixture struct {
	store   *memory.Store
	server  *server.Server
	http    *httptest.Server
	metrics *metrics.Metrics
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	ctx := context.Background()
	f := &testFixture{store: memory.New(), metrics: metrics.New()}
	repos := f.store.Repos()

	hash, err := users.HashPassword(testPassword)
	require.NoError(t, err)
	require.NoError(t, repos.Users.Upsert(ctx, &users.User{ID: testUserID, Username: testUsername, PasswordHash: hash}))
	require.NoError(t, repos.Sessions.Upsert(ctx, &sessions.Session{
		SessionID: "sid-1", UserID: testUserID, RToken: "rtoken-1", ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, repos.Clients.Upsert(ctx, &clients.Client{
		APIKey:      testAPIKey,
		APISecret:   testAPISecret,
		RedirectURI: testRedirectURI,
		Grants:      clients.DefaultGrantFlags(),
		Refresh:     clients.DefaultRefreshFlags(),
	}))
	require.NoError(t, repos.Clients.Upsert(ctx, &clients.Client{
		APIKey:    "hermes",
		APISecret: "hermes-secret",
		Grants:    clients.DefaultGrantFlags(),
	}))
	for _, route := range []string{server.RouteOAuth2Refresh, server.RouteAppAuthToken} {
		require.NoError(t, repos.Permissions.AddRule(ctx, permissions.Rule{ClientID: testAPIKey, Pattern: route, Verb: http.MethodGet}))
	}

	tokenCreator, err := token.New(repos.Tokens, token.NewHMACSigner("test-secret"))
	require.NoError(t, err)
	validator, err := users.NewPasswordValidator(repos.Users)
	require.NoError(t, err)
	service, err := auth.NewAuthorizationService(auth.Repos{
		Clients:  repos.Clients,
		Consents: repos.Consents,
		Users:    validator,
		Sessions: sessions.NewStoreValidator(repos.Sessions, time.Now),
	}, tokenCreator)
	require.NoError(t, err)

	cfg, err := config.Parse(map[string]string{"CORS_ALLOWED_ORIGINS": testOrigin})
	require.NoError(t, err)

	f.server, err = server.New(cfg, server.Dependencies{
		Auth:        service,
		Permissions: permissions.NewMatcher(repos.Permissions),
		Metrics:     f.metrics,
	})
	require.NoError(t, err)
	f.http = httptest.NewServer(f.server)
	t.Cleanup(f.http.Close)
	return f
}

// client does not follow redirects, so the 303 from the authorization endpoint can be inspected.
func (f *testFixture) client() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
}

func (f *testFixture) postForm(t *testing.T, route string, values url.Values) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := f.client().PostForm(f.http.URL+route, values)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (f *testFixture) get(t *testing.T, route string, bearer string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.http.URL+route, nil)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := f.client().Do(req)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return nil
	}
	body := map[string]any{}
	require.NoError(t, json.Unmarshal(data, &body), string(data))
	return body
}

func requireFailure(t *testing.T, resp *http.Response, body map[string]any, status int, code string) {
	t.Helper()
	require.Equal(t, status, resp.StatusCode, body)
	require.Equal(t, "failure", body["status"])
	require.Equal(t, code, body["code"])
	require.NotEmpty(t, body["msg"])
}

func requireSuccess(t *testing.T, resp *http.Response, body map[string]any) {
	t.Helper()
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.Equal(t, "success", body["status"])
}

func (f *testFixture) passwordToken(t *testing.T) string {
	t.Helper()
	resp, body := f.postForm(t, server.RouteOAuth2Token, url.Values{
		"grant_type": {"password"},
		"api_key":    {testAPIKey},
		"username":   {testUsername},
		"password":   {testPassword},
	})
	requireSuccess(t, resp, body)
	return body["access_token"].(string)
}

func TestNew(t *testing.T) {
	_, err := server.New(nil, server.Dependencies{})
	require.Error(t, err)
}

func TestTokenEndpoint(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("password grant", func(t *testing.T) {
		resp, body := f.postForm(t, server.RouteOAuth2Token, url.Values{
			"grant_type": {"password"},
			"api_key":    {testAPIKey},
			"username":   {testUsername},
			"password":   {testPassword},
		})
		requireSuccess(t, resp, body)
		require.NotEmpty(t, body["access_token"])
		require.Equal(t, "bearer", body["token_type"])
		require.InDelta(t, 3600, body["expires_in"], 2)
		require.NotContains(t, body, "refresh_token", "resource owner refresh is off by default")
		require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	})

	t.Run("missing api_key", func(t *testing.T) {
		resp, body := f.postForm(t, server.RouteOAuth2Token, url.Values{
			"grant_type": {"password"},
			"username":   {testUsername},
			"password":   {testPassword},
		})
		requireFailure(t, resp, body, http.StatusUnprocessableEntity, "missing_parameter")
	})

	t.Run("unknown grant type", func(t *testing.T) {
		resp, body := f.postForm(t, server.RouteOAuth2Token, url.Values{"grant_type": {"magic"}})
		requireFailure(t, resp, body, http.StatusBadRequest, "response_type")
	})

	t.Run("wrong password", func(t *testing.T) {
		resp, body := f.postForm(t, server.RouteOAuth2Token, url.Values{
			"grant_type": {"password"},
			"api_key":    {testAPIKey},
			"username":   {testUsername},
			"password":   {"marge"},
		})
		requireFailure(t, resp, body, http.StatusUnauthorized, "login_failed")
		require.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
	})

	t.Run("json body with client_id alias", func(t *testing.T) {
		payload := `{"grant_type":"client_credentials","client_id":"apollon","client_secret":"apollon-secret"}`
		resp, err := http.Post(f.http.URL+server.RouteOAuth2Token, "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		body := decodeBody(t, resp)
		requireSuccess(t, resp, body)
		require.NotEmpty(t, body["access_token"])
	})

	t.Run("malformed json", func(t *testing.T) {
		resp, err := http.Post(f.http.URL+server.RouteOAuth2Token, "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		body := decodeBody(t, resp)
		requireFailure(t, resp, body, http.StatusBadRequest, "invalid_request")
	})
}

func TestAuthorizationCodeFlow(t *testing.T) {
	f := setupTestFixture(t)

	resp, body := f.get(t, server.RouteOAuth2Auth+"?"+url.Values{
		"client_id":     {testAPIKey},
		"redirect_uri":  {testRedirectURI},
		"response_type": {"code"},
	}.Encode(), "")
	requireSuccess(t, resp, body)
	require.Equal(t, "login", body["action"])
	require.Equal(t, testAPIKey, body["api_key"])
	require.Equal(t, "code", body["response_type"])

	resp, _ = f.postForm(t, server.RouteOAuth2Auth, url.Values{
		"api_key":       {testAPIKey},
		"redirect_uri":  {testRedirectURI},
		"response_type": {"code"},
		"username":      {testUsername},
		"password":      {testPassword},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(location.String(), testRedirectURI))
	code := location.Query().Get("code")
	require.NotEmpty(t, code)

	exchange := url.Values{
		"grant_type":   {"authorization_code"},
		"api_key":      {testAPIKey},
		"api_secret":   {testAPISecret},
		"code":         {code},
		"redirect_uri": {testRedirectURI},
	}
	resp, body = f.postForm(t, server.RouteOAuth2Token, exchange)
	requireSuccess(t, resp, body)
	require.NotEmpty(t, body["access_token"])
	refreshToken, ok := body["refresh_token"].(string)
	require.True(t, ok, "authorization code refresh is on by default")

	resp, body = f.postForm(t, server.RouteOAuth2Token, exchange)
	requireFailure(t, resp, body, http.StatusUnauthorized, "token_invalid")

	resp, body = f.postForm(t, server.RouteOAuth2Token, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
	requireSuccess(t, resp, body)
	require.NotEqual(t, refreshToken, body["refresh_token"])

	resp, body = f.postForm(t, server.RouteOAuth2Token, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
	requireFailure(t, resp, body, http.StatusUnauthorized, "token_invalid")
}

func TestAuthorizeEndpoint(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("bad response type", func(t *testing.T) {
		resp, body := f.get(t, server.RouteOAuth2Auth+"?api_key=apollon&redirect_uri="+url.QueryEscape(testRedirectURI)+"&response_type=xyz", "")
		requireFailure(t, resp, body, http.StatusBadRequest, "response_type")
	})

	t.Run("missing redirect uri", func(t *testing.T) {
		resp, body := f.get(t, server.RouteOAuth2Auth+"?api_key=apollon&response_type=code", "")
		requireFailure(t, resp, body, http.StatusUnprocessableEntity, "missing_parameter")
	})

	t.Run("get ignores credentials", func(t *testing.T) {
		resp, body := f.get(t, server.RouteOAuth2Auth+"?"+url.Values{
			"api_key":       {testAPIKey},
			"redirect_uri":  {testRedirectURI},
			"response_type": {"token"},
			"username":      {testUsername},
			"password":      {testPassword},
		}.Encode(), "")
		requireSuccess(t, resp, body)
		require.Equal(t, "login", body["action"])
	})

	t.Run("implicit grant redirects with fragment", func(t *testing.T) {
		resp, _ := f.postForm(t, server.RouteOAuth2Auth, url.Values{
			"api_key":       {testAPIKey},
			"redirect_uri":  {testRedirectURI},
			"response_type": {"token"},
			"username":      {testUsername},
			"password":      {testPassword},
		})
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		location, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		fragment, err := url.ParseQuery(location.Fragment)
		require.NoError(t, err)
		require.NotEmpty(t, fragment.Get("access_token"))
		require.Equal(t, "bearer", fragment.Get("token_type"))
	})

	t.Run("consent form", func(t *testing.T) {
		require.NoError(t, f.store.Clients.Upsert(context.Background(), &clients.Client{
			APIKey:          "athena",
			APISecret:       "athena-secret",
			RedirectURI:     testRedirectURI,
			ConsentRequired: true,
			ConsentMessage:  "Allow athena?",
			Grants:          clients.DefaultGrantFlags(),
		}))
		form := url.Values{
			"api_key":       {"athena"},
			"redirect_uri":  {testRedirectURI},
			"response_type": {"code"},
			"username":      {testUsername},
			"password":      {testPassword},
		}
		resp, body := f.postForm(t, server.RouteOAuth2Auth, form)
		requireSuccess(t, resp, body)
		require.Equal(t, "consent", body["action"])
		require.Equal(t, "Allow athena?", body["consent_message"])
		authenticity, ok := body["authenticity_token"].(string)
		require.True(t, ok)

		form.Del("username")
		form.Del("password")
		form.Set("authenticity_token", authenticity)
		resp, _ = f.postForm(t, server.RouteOAuth2Auth, form)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)

		resp, body = f.postForm(t, server.RouteOAuth2Auth, form)
		requireFailure(t, resp, body, http.StatusUnauthorized, "token_invalid")
	})
}

func TestSessionBridge(t *testing.T) {
	f := setupTestFixture(t)

	resp, body := f.postForm(t, server.RouteRToken2Bearer, url.Values{
		"api_key":    {testAPIKey},
		"user_id":    {testUserID},
		"rtoken":     {"rtoken-1"},
		"session_id": {"sid-1"},
	})
	requireSuccess(t, resp, body)
	bearer := body["access_token"].(string)

	t.Run("refresh for bearer", func(t *testing.T) {
		resp, body := f.get(t, server.RouteOAuth2Refresh, bearer)
		requireSuccess(t, resp, body)
		require.NotEmpty(t, body["refresh_token"])
	})

	t.Run("exchange token is reused", func(t *testing.T) {
		resp, first := f.get(t, server.RouteAppAuthToken, bearer)
		requireSuccess(t, resp, first)
		require.NotEmpty(t, first["token"])
		resp, second := f.get(t, server.RouteAppAuthToken, bearer)
		requireSuccess(t, resp, second)
		require.Equal(t, first["token"], second["token"])
	})

	t.Run("wrong rtoken", func(t *testing.T) {
		resp, body := f.postForm(t, server.RouteRToken2Bearer, url.Values{
			"api_key":    {testAPIKey},
			"user_id":    {testUserID},
			"rtoken":     {"stolen"},
			"session_id": {"sid-1"},
		})
		requireFailure(t, resp, body, http.StatusUnauthorized, "token_invalid")
	})

	t.Run("missing session id", func(t *testing.T) {
		resp, body := f.postForm(t, server.RouteRToken2Bearer, url.Values{
			"api_key": {testAPIKey},
			"user_id": {testUserID},
			"rtoken":  {"rtoken-1"},
		})
		requireFailure(t, resp, body, http.StatusUnprocessableEntity, "missing_parameter")
	})
}

func TestRequireBearer(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("no token", func(t *testing.T) {
		resp, body := f.get(t, server.RouteOAuth2Refresh, "")
		requireFailure(t, resp, body, http.StatusUnauthorized, "token_invalid")

		resp, body = f.get(t, server.RouteOAuth2TokenInfo, "")
		requireFailure(t, resp, body, http.StatusUnauthorized, "token_invalid")

		resp, body = f.get(t, server.RouteAppAuthToken, "")
		requireFailure(t, resp, body, http.StatusUnauthorized, "token_invalid")
	})

	t.Run("garbage token", func(t *testing.T) {
		resp, body := f.get(t, server.RouteOAuth2Refresh, "not-a-jwt")
		requireFailure(t, resp, body, http.StatusUnauthorized, "token_invalid")
	})

	t.Run("client without permission", func(t *testing.T) {
		resp, body := f.postForm(t, server.RouteOAuth2Token, url.Values{
			"grant_type": {"client_credentials"},
			"api_key":    {"hermes"},
			"api_secret": {"hermes-secret"},
		})
		requireSuccess(t, resp, body)

		resp, body = f.get(t, server.RouteOAuth2Refresh, body["access_token"].(string))
		requireFailure(t, resp, body, http.StatusForbidden, "permission_denied")
	})
}

func TestTokenInfoAndRevoke(t *testing.T) {
	f := setupTestFixture(t)
	bearer := f.passwordToken(t)

	resp, body := f.get(t, server.RouteOAuth2TokenInfo, bearer)
	requireSuccess(t, resp, body)
	require.Equal(t, testAPIKey, body["api_key"])
	require.Equal(t, testUserID, body["user_id"])
	require.Equal(t, "bearer", body["type"])

	resp, body = f.get(t, server.RouteOAuth2TokenInfo+"?access_token="+url.QueryEscape(bearer), "")
	requireSuccess(t, resp, body)

	resp, body = f.postForm(t, server.RouteOAuth2Revoke, url.Values{
		"token":      {bearer},
		"api_key":    {testAPIKey},
		"api_secret": {"wrong"},
	})
	requireFailure(t, resp, body, http.StatusUnauthorized, "login_failed")

	resp, body = f.postForm(t, server.RouteOAuth2Revoke, url.Values{
		"token":      {bearer},
		"api_key":    {testAPIKey},
		"api_secret": {testAPISecret},
	})
	requireSuccess(t, resp, body)

	resp, body = f.get(t, server.RouteOAuth2TokenInfo, bearer)
	requireFailure(t, resp, body, http.StatusUnauthorized, "token_invalid")

	resp, body = f.postForm(t, server.RouteOAuth2Revoke, url.Values{
		"token":      {"unknown"},
		"api_key":    {testAPIKey},
		"api_secret": {testAPISecret},
	})
	requireSuccess(t, resp, body)
}

func TestCors(t *testing.T) {
	f := setupTestFixture(t)

	req, err := http.NewRequest(http.MethodOptions, f.http.URL+server.RouteOAuth2Token, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", testOrigin)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, testOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
	require.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Methods"))

	req, err = http.NewRequest(http.MethodOptions, f.http.URL+server.RouteOAuth2Token, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsAndHealth(t *testing.T) {
	f := setupTestFixture(t)
	f.passwordToken(t)

	resp, err := http.Get(f.http.URL + server.RouteMetrics)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(data), `oauth_tokens_issued_total{grant="password"} 1`)
	require.Contains(t, string(data), `oauth_request_duration_seconds_count{route="/v1/oauth2/token"} 1`)

	resp, body := f.get(t, server.RouteHealth, "")
	requireSuccess(t, resp, body)
}

func TestRecoverMiddleware(t *testing.T) {
	f := setupTestFixture(t)
	h := f.server.RecoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "failure", body["status"])
	require.Equal(t, "internal", body["code"])
}
