package clients

import (
	"crypto/subtle"
	"net/url"
	"slices"

	"github.com/jrsteele09/lms-oauth-gateway/oauth2"
)

// GrantFlags enable or disable a grant type for a client.
type GrantFlags struct {
	ClientCredentials bool `json:"client_credentials" yaml:"client_credentials"`
	AuthorizationCode bool `json:"authorization_code" yaml:"authorization_code"`
	Implicit          bool `json:"implicit" yaml:"implicit"`
	ResourceOwner     bool `json:"resource_owner" yaml:"resource_owner"`
}

// DefaultGrantFlags enables every grant type.
func DefaultGrantFlags() GrantFlags {
	return GrantFlags{ClientCredentials: true, AuthorizationCode: true, Implicit: true, ResourceOwner: true}
}

// DefaultRefreshFlags hands out refresh tokens for the authorization code flow only.
func DefaultRefreshFlags() GrantFlags {
	return GrantFlags{AuthorizationCode: true}
}

// Enabled reports whether the flag for grant is set. The refresh_token grant has no flag of its own;
// it is governed by the flags of the grant that issued the refresh token.
func (f GrantFlags) Enabled(grant oauth2.GrantType) bool {
	switch grant {
	case oauth2.ClientCredentialsGrant:
		return f.ClientCredentials
	case oauth2.AuthorizationCodeGrant:
		return f.AuthorizationCode
	case oauth2.ImplicitGrant:
		return f.Implicit
	case oauth2.PasswordGrant:
		return f.ResourceOwner
	case oauth2.RefreshTokenGrant:
		return true
	}
	return false
}

// Client is a registered API client. Clients are provisioned out of band and are read-only to the
// authorization service.
type Client struct {
	APIKey      string `json:"api_key" yaml:"api_key"`
	APISecret   string `json:"-" yaml:"api_secret"`
	Description string `json:"description,omitempty" yaml:"description"`

	// RedirectURI is the registered redirect target. Empty accepts any absolute URI.
	RedirectURI string `json:"redirect_uri,omitempty" yaml:"redirect_uri"`

	// ConsentRequired makes the authorization endpoint ask for explicit consent, showing ConsentMessage,
	// before issuing a code or token for a user that has not consented yet.
	ConsentRequired bool   `json:"consent_required" yaml:"consent_required"`
	ConsentMessage  string `json:"consent_message,omitempty" yaml:"consent_message"`

	Grants  GrantFlags `json:"grants" yaml:"grants"`
	Refresh GrantFlags `json:"refresh" yaml:"refresh"`

	// UserRestrictionActive binds client_credentials tokens to DefaultUserID and limits user-bound
	// grants to AllowedUserIDs (when that list is non-empty).
	UserRestrictionActive bool     `json:"user_restriction_active" yaml:"user_restriction_active"`
	DefaultUserID         string   `json:"default_user_id,omitempty" yaml:"default_user_id"`
	AllowedUserIDs        []string `json:"allowed_user_ids,omitempty" yaml:"allowed_user_ids"`
}

// VerifySecret compares secret with the client's secret in constant time.
func (c *Client) VerifySecret(secret string) bool {
	if c.APISecret == "" || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.APISecret), []byte(secret)) == 1
}

// AllowsGrant reports whether the grant type is enabled for the client.
func (c *Client) AllowsGrant(grant oauth2.GrantType) bool {
	return c.Grants.Enabled(grant)
}

// RefreshEnabled reports whether tokens issued through grant come with a refresh token.
func (c *Client) RefreshEnabled(grant oauth2.GrantType) bool {
	if grant == oauth2.RefreshTokenGrant {
		return true
	}
	return c.Refresh.Enabled(grant)
}

// AllowsUser reports whether userID may obtain tokens through this client.
func (c *Client) AllowsUser(userID string) bool {
	if !c.UserRestrictionActive || len(c.AllowedUserIDs) == 0 {
		return true
	}
	return slices.Contains(c.AllowedUserIDs, userID)
}

// AcceptsRedirect reports whether uri may be used as the authorization redirect target.
func (c *Client) AcceptsRedirect(uri string) bool {
	if c.RedirectURI != "" {
		return uri == c.RedirectURI
	}
	u, err := url.Parse(uri)
	return err == nil && u.IsAbs() && u.Host != ""
}
