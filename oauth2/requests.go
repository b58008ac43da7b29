package oauth2

// AuthorizationRequest holds the parameters accepted by the authorization endpoint, for both the
// GET (initiate) and POST (login / consent) variants.
type AuthorizationRequest struct {
	// APIKey identifies the client. client_id is accepted as an alias.
	// Required: Yes
	APIKey string

	// RedirectURI is where the user agent is sent once a code or token has been issued.
	// Required: Yes
	// Validated against: the client's registered redirect URI, when one is registered
	RedirectURI string

	// ResponseType selects the flow: "code" or "token".
	// Required: Yes
	ResponseType string

	// Username and Password are the end-user credentials posted from the login form.
	// Absent on the initial GET.
	Username string
	Password string

	// AuthenticityToken is posted back from the consent form. It binds the consent to the
	// client, user, redirect URI and response type it was issued for.
	AuthenticityToken string
}

// HasCredentials reports whether the login form has been submitted.
func (r AuthorizationRequest) HasCredentials() bool {
	return r.Username != "" || r.Password != ""
}

// TokenRequest holds the parameters accepted by the token endpoint.
type TokenRequest struct {
	// GrantType selects the grant: password, client_credentials, authorization_code or refresh_token.
	GrantType string

	// APIKey and APISecret are the client credentials. client_id / client_secret are accepted as aliases.
	APIKey    string
	APISecret string

	// Username and Password are used by the password grant.
	Username string
	Password string

	// Code and RedirectURI are used by the authorization_code grant. RedirectURI must equal the one
	// the code was issued for.
	Code        string
	RedirectURI string

	// RefreshToken is used by the refresh_token grant.
	RefreshToken string
}

// SessionBridgeRequest exchanges an authenticated host session for a bearer token.
type SessionBridgeRequest struct {
	APIKey    string
	UserID    string
	RToken    string
	SessionID string
}

// RevokeRequest revokes an access or refresh token (RFC 7009).
type RevokeRequest struct {
	Token         string
	TokenTypeHint TokenTypeHint
	APIKey        string
	APISecret     string
}
