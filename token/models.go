package token

import (
	"math"
	"time"
)

// AccessToken is a verified or freshly signed bearer token.
type AccessToken struct {
	Token     string    // Signed JWT handed to the client
	ID        string    // jti, the revocation handle
	ClientID  string    // api_key of the client the token was issued to
	UserID    string    // User the token acts for
	IssuedAt  time.Time // iat
	ExpiresAt time.Time // exp
}

// ExpiresIn returns the remaining lifetime in whole seconds, never negative.
func (t *AccessToken) ExpiresIn(now time.Time) int {
	return secondsUntil(now, t.ExpiresAt)
}

// AuthorizationCode is a one-time code issued by the authorization endpoint.
type AuthorizationCode struct {
	Code        string    `json:"code"`
	ClientID    string    `json:"client_id"`
	UserID      string    `json:"user_id"`
	RedirectURI string    `json:"redirect_uri"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// RefreshRecord is the server side state of a refresh token. There is at most one per (client, user).
type RefreshRecord struct {
	Token          string    `json:"token"`
	ClientID       string    `json:"client_id"`
	UserID         string    `json:"user_id"`
	NumRefreshLeft int       `json:"num_refresh_left"` // Remaining refresh_token grants
	IssuedAt       time.Time `json:"init_timestamp"`   // When the chain was (re)started
	LastRefresh    time.Time `json:"last_refresh_timestamp"`
	NumResets      int       `json:"num_resets"` // Times the chain was restarted by a fresh issuance
	ExpiresAt      time.Time `json:"expires_at"`
}

// ExchangeToken is a short-lived login token for bridging a bearer into a passwordless host login.
type ExchangeToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidAt reports whether the token is still usable at now.
func (e *ExchangeToken) ValidAt(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

func secondsUntil(now, t time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
