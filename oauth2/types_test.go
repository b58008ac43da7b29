package oauth2_test

import (
	"encoding/json"
	"testing"

	"github.com/jrsteele09/lms-oauth-gateway/oauth2"
	"github.com/stretchr/testify/require"
)

func TestParseResponseType(t *testing.T) {
	for _, tc := range []struct {
		in    string
		ok    bool
		grant oauth2.GrantType
	}{
		{"code", true, oauth2.AuthorizationCodeGrant},
		{"token", true, oauth2.ImplicitGrant},
		{"xyz", false, ""},
		{"", false, ""},
		{"CODE", false, ""},
	} {
		t.Run(tc.in, func(t *testing.T) {
			rt, ok := oauth2.ParseResponseType(tc.in)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.grant, rt.Grant())
		})
	}
}

func TestParseTokenGrantType(t *testing.T) {
	for _, gt := range oauth2.TokenGrantTypes {
		parsed, ok := oauth2.ParseTokenGrantType(string(gt))
		require.True(t, ok)
		require.Equal(t, gt, parsed)
	}

	_, ok := oauth2.ParseTokenGrantType("implicit")
	require.False(t, ok, "implicit is only reachable through the authorization endpoint")

	_, ok = oauth2.ParseTokenGrantType("")
	require.False(t, ok)
}

func TestTokenResponseOmitsEmptyRefreshToken(t *testing.T) {
	body, err := json.Marshal(oauth2.NewTokenResponse("at", 3600, ""))
	require.NoError(t, err)
	require.NotContains(t, string(body), "refresh_token")
	require.Contains(t, string(body), `"token_type":"bearer"`)

	body, err = json.Marshal(oauth2.NewTokenResponse("at", 3600, "rt"))
	require.NoError(t, err)
	require.Contains(t, string(body), `"refresh_token":"rt"`)
}
