package server_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/lms-oauth-gateway/server"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Stock OAuth2 clients must be able to talk to the token endpoint despite the status envelope.
func TestClientCredentialsWithStockClient(t *testing.T) {
	f := setupTestFixture(t)

	for name, style := range map[string]oauth2.AuthStyle{
		"params": oauth2.AuthStyleInParams,
		"header": oauth2.AuthStyleInHeader,
	} {
		t.Run(name, func(t *testing.T) {
			cfg := clientcredentials.Config{
				ClientID:     testAPIKey,
				ClientSecret: testAPISecret,
				TokenURL:     f.http.URL + server.RouteOAuth2Token,
				AuthStyle:    style,
			}
			tok, err := cfg.Token(context.Background())
			require.NoError(t, err)
			require.NotEmpty(t, tok.AccessToken)
			require.Equal(t, "bearer", tok.TokenType)
			require.True(t, tok.Valid())

			resp, body := f.get(t, server.RouteOAuth2TokenInfo, tok.AccessToken)
			requireSuccess(t, resp, body)
			require.Equal(t, "rest_sys_user", body["user_id"])
		})
	}

	t.Run("wrong secret", func(t *testing.T) {
		cfg := clientcredentials.Config{
			ClientID:     testAPIKey,
			ClientSecret: "nope",
			TokenURL:     f.http.URL + server.RouteOAuth2Token,
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		_, err := cfg.Token(context.Background())
		var retrieveErr *oauth2.RetrieveError
		require.ErrorAs(t, err, &retrieveErr)
		require.Equal(t, 401, retrieveErr.Response.StatusCode)
	})
}
