package token

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ConsentGrant is what a consent form's authenticity token vouches for: the user logged in and was
// shown the consent message for this client, redirect URI and response type.
type ConsentGrant struct {
	ClientID     string
	UserID       string
	RedirectURI  string
	ResponseType string
}

// IssueAuthenticityToken signs a short-lived token for the consent form.
func (m *Manager) IssueAuthenticityToken(grant ConsentGrant) (string, error) {
	now := m.nowFunc()
	signed, err := m.signer.Sign(jwt.MapClaims{
		"iss":           m.issuer,
		"sub":           grant.UserID,
		"client_id":     grant.ClientID,
		"redirect_uri":  grant.RedirectURI,
		"response_type": grant.ResponseType,
		"typ":           typeAuthenticity,
		"iat":           now.Unix(),
		"exp":           now.Add(m.authenticityExpiry).Unix(),
		"jti":           uuid.New().String(),
	})
	if err != nil {
		return "", errors.Wrap(err, "[Manager.IssueAuthenticityToken] Sign")
	}
	return signed, nil
}

// ConsumeAuthenticityToken returns the grant an authenticity token was issued for and marks the token
// used. A token that fails verification or was already consumed is ErrTokenInvalid.
func (m *Manager) ConsumeAuthenticityToken(ctx context.Context, rawToken string) (*ConsentGrant, error) {
	claims, err := m.parseClaims(rawToken, typeAuthenticity)
	if err != nil {
		return nil, err
	}
	grant := &ConsentGrant{}
	grant.UserID, _ = claims["sub"].(string)
	grant.ClientID, _ = claims["client_id"].(string)
	grant.RedirectURI, _ = claims["redirect_uri"].(string)
	grant.ResponseType, _ = claims["response_type"].(string)
	jti, _ := claims["jti"].(string)
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || jti == "" || grant.UserID == "" || grant.ClientID == "" {
		return nil, errors.Wrap(ErrTokenInvalid, "missing claims")
	}

	first, err := m.repos.Revoked.Revoke(ctx, jti, exp.Time, m.nowFunc())
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.ConsumeAuthenticityToken] Revoke")
	}
	if !first {
		return nil, errors.Wrap(ErrTokenInvalid, "authenticity token already used")
	}
	return grant, nil
}
