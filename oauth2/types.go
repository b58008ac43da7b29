package oauth2

// ResponseType represents the OAuth 2.0 response type requested at the authorization endpoint.
type ResponseType string

const (
	// CodeResponseType starts the authorization code flow.
	// The endpoint redirects to redirect_uri?code=... and the code is exchanged at the token endpoint.
	CodeResponseType ResponseType = "code"

	// TokenResponseType starts the implicit flow.
	// The endpoint redirects to redirect_uri#access_token=... without a code exchange.
	TokenResponseType ResponseType = "token"
)

// ParseResponseType returns the response type named by s. Anything other than
// "code" or "token" is rejected.
func ParseResponseType(s string) (ResponseType, bool) {
	switch ResponseType(s) {
	case CodeResponseType, TokenResponseType:
		return ResponseType(s), true
	}
	return "", false
}

// Grant returns the grant type a client must have enabled to use this response type.
func (r ResponseType) Grant() GrantType {
	switch r {
	case CodeResponseType:
		return AuthorizationCodeGrant
	case TokenResponseType:
		return ImplicitGrant
	}
	return ""
}

// GrantType represents an OAuth 2.0 grant type.
type GrantType string

const (
	// PasswordGrant exchanges a user's username and password for tokens (resource owner credentials).
	// Token request includes: api_key, username, password
	PasswordGrant GrantType = "password"

	// ClientCredentialsGrant authenticates the client itself.
	// Token request includes: api_key, api_secret
	// The token is bound to the client's default user when user restriction is active,
	// otherwise to the generic service identity.
	ClientCredentialsGrant GrantType = "client_credentials"

	// AuthorizationCodeGrant exchanges a one-time authorization code for tokens.
	// Token request includes: api_key, api_secret, code, redirect_uri
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenGrant exchanges a refresh token for a rotated token pair.
	// Token request includes: refresh_token
	RefreshTokenGrant GrantType = "refresh_token"

	// ImplicitGrant is only reachable through the authorization endpoint with response_type=token.
	// It is never accepted as a grant_type at the token endpoint.
	ImplicitGrant GrantType = "implicit"
)

// TokenGrantTypes lists the grant types accepted by the token endpoint.
var TokenGrantTypes = []GrantType{PasswordGrant, ClientCredentialsGrant, AuthorizationCodeGrant, RefreshTokenGrant}

// ParseTokenGrantType returns the token endpoint grant type named by s.
func ParseTokenGrantType(s string) (GrantType, bool) {
	switch GrantType(s) {
	case PasswordGrant, ClientCredentialsGrant, AuthorizationCodeGrant, RefreshTokenGrant:
		return GrantType(s), true
	}
	return "", false
}

// TokenTypeHint is the optional hint accepted by the revocation endpoint (RFC 7009).
type TokenTypeHint string

const (
	AccessTokenHint  TokenTypeHint = "access_token"
	RefreshTokenHint TokenTypeHint = "refresh_token"
)
