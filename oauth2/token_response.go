package oauth2

import "github.com/jrsteele09/lms-oauth-gateway/internal/utils"

// BearerTokenType is the only token type issued.
const BearerTokenType = "bearer"

// TokenResponse is the payload returned for every successful token issuance, whether it came from the
// token endpoint, the implicit flow or the session bridge.
type TokenResponse struct {
	// AccessToken is the signed bearer credential.
	// Usage: Authorization: Bearer <access_token>
	AccessToken string `json:"access_token"`

	// TokenType is always "bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime of the access token in seconds.
	ExpiresIn int `json:"expires_in"`

	// RefreshToken is present only when the client has refresh enabled for the grant that was used.
	// Each use rotates it and consumes one unit of its reuse budget.
	RefreshToken *string `json:"refresh_token,omitempty"`

	// Scope is kept for wire compatibility. Route permissions replace OAuth scopes, so it is always empty.
	Scope string `json:"scope"`
}

// NewTokenResponse builds a bearer token response. An empty refresh token is omitted.
func NewTokenResponse(accessToken string, expiresIn int, refreshToken string) *TokenResponse {
	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    BearerTokenType,
		ExpiresIn:    expiresIn,
		RefreshToken: utils.PtrOrNil(refreshToken),
	}
}

// TokenInfo describes an access token presented to the tokeninfo endpoint.
type TokenInfo struct {
	APIKey    string `json:"api_key"`
	UserID    string `json:"user_id"`
	Type      string `json:"type"`
	ExpiresIn int    `json:"expires_in"`
	Scope     string `json:"scope"`
}
