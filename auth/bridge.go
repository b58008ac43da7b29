package auth

import (
	"context"

	"github.com/jrsteele09/lms-oauth-gateway/clients"
	"github.com/jrsteele09/lms-oauth-gateway/oauth2"
	"github.com/jrsteele09/lms-oauth-gateway/sessions"
	"github.com/jrsteele09/lms-oauth-gateway/token"
	"github.com/pkg/errors"
)

// SessionToBearer exchanges an authenticated host session for an access token bound to the session's
// user, issued the same way as a client_credentials token.
func (as *AuthorizationService) SessionToBearer(ctx context.Context, req oauth2.SessionBridgeRequest) (*oauth2.TokenResponse, error) {
	ctx, cancel := as.callContext(ctx)
	defer cancel()

	tr, err := as.sessionToBearer(ctx, req)
	if err != nil {
		return nil, as.fail(ctx, "rtoken2bearer", err)
	}
	return tr, nil
}

func (as *AuthorizationService) sessionToBearer(ctx context.Context, req oauth2.SessionBridgeRequest) (*oauth2.TokenResponse, error) {
	if err := requireParams(
		param("api_key", req.APIKey),
		param("user_id", req.UserID),
		param("rtoken", req.RToken),
		param("session_id", req.SessionID),
	); err != nil {
		return nil, err
	}

	client, err := as.lookupClient(ctx, req.APIKey)
	if err != nil {
		return nil, err
	}

	err = as.repos.Sessions.ValidateSession(ctx, req.UserID, req.RToken, req.SessionID)
	if errors.Is(err, sessions.ErrInvalidSession) {
		return nil, tokenInvalid(err, "host session")
	}
	if err != nil {
		return nil, err
	}
	if !client.AllowsUser(req.UserID) {
		return nil, loginFailed(errors.Errorf("user %s not allowed for client %s", req.UserID, client.APIKey))
	}
	return as.issueTokenPair(ctx, client, req.UserID, oauth2.ClientCredentialsGrant)
}

// VerifyBearer validates an access token presented as a bearer credential.
func (as *AuthorizationService) VerifyBearer(ctx context.Context, rawToken string) (*token.AccessToken, error) {
	ctx, cancel := as.callContext(ctx)
	defer cancel()

	at, err := as.verifyBearer(ctx, rawToken)
	if err != nil {
		return nil, as.fail(ctx, "verify_bearer", err)
	}
	return at, nil
}

func (as *AuthorizationService) verifyBearer(ctx context.Context, rawToken string) (*token.AccessToken, error) {
	if rawToken == "" {
		return nil, tokenInvalid(errors.New("no bearer token presented"), "access token")
	}
	at, err := as.tokenCreator.VerifyAccessToken(ctx, rawToken)
	if err != nil {
		return nil, as.tokenFailure(err, "access token")
	}
	return at, nil
}

// BearerToExchangeToken returns the short-lived exchange token of the bearer's user, creating one when
// the user has none that is still valid.
func (as *AuthorizationService) BearerToExchangeToken(ctx context.Context, rawToken string) (*token.ExchangeToken, error) {
	ctx, cancel := as.callContext(ctx)
	defer cancel()

	et, err := as.bearerToExchangeToken(ctx, rawToken)
	if err != nil {
		return nil, as.fail(ctx, "auth_token", err)
	}
	return et, nil
}

func (as *AuthorizationService) bearerToExchangeToken(ctx context.Context, rawToken string) (*token.ExchangeToken, error) {
	at, err := as.verifyBearer(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	et, err := as.tokenCreator.ExchangeTokenFor(ctx, at.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.bearerToExchangeToken] ExchangeTokenFor")
	}
	return et, nil
}

// RefreshForBearer starts a new refresh chain for the client and user of an already verified bearer.
func (as *AuthorizationService) RefreshForBearer(ctx context.Context, at *token.AccessToken) (*token.RefreshRecord, error) {
	ctx, cancel := as.callContext(ctx)
	defer cancel()

	rec, err := as.refreshForBearer(ctx, at)
	if err != nil {
		return nil, as.fail(ctx, "refresh", err)
	}
	return rec, nil
}

func (as *AuthorizationService) refreshForBearer(ctx context.Context, at *token.AccessToken) (*token.RefreshRecord, error) {
	if at == nil {
		return nil, tokenInvalid(nil, "access token")
	}
	if _, err := as.registry.Lookup(ctx, at.ClientID); err != nil {
		if errors.Is(err, clients.ErrClientNotFound) {
			return nil, tokenInvalid(err, "access token")
		}
		return nil, err
	}
	rec, err := as.tokenCreator.IssueRefreshToken(ctx, at.ClientID, at.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.refreshForBearer] IssueRefreshToken")
	}
	return rec, nil
}

// TokenInfo describes a valid access token.
func (as *AuthorizationService) TokenInfo(ctx context.Context, rawToken string) (*oauth2.TokenInfo, error) {
	ctx, cancel := as.callContext(ctx)
	defer cancel()

	at, err := as.verifyBearer(ctx, rawToken)
	if err != nil {
		return nil, as.fail(ctx, "tokeninfo", err)
	}
	return &oauth2.TokenInfo{
		APIKey:    at.ClientID,
		UserID:    at.UserID,
		Type:      oauth2.BearerTokenType,
		ExpiresIn: at.ExpiresIn(as.tokenCreator.Now()),
	}, nil
}

// Revoke invalidates an access or refresh token owned by the authenticated client. Unknown tokens and
// tokens of other clients are ignored, following RFC 7009.
func (as *AuthorizationService) Revoke(ctx context.Context, req oauth2.RevokeRequest) error {
	ctx, cancel := as.callContext(ctx)
	defer cancel()

	if err := as.revoke(ctx, req); err != nil {
		return as.fail(ctx, "revoke", err)
	}
	return nil
}

func (as *AuthorizationService) revoke(ctx context.Context, req oauth2.RevokeRequest) error {
	if err := requireParams(
		param("token", req.Token),
		param("api_key", req.APIKey),
		param("api_secret", req.APISecret),
	); err != nil {
		return err
	}

	client, err := as.lookupClient(ctx, req.APIKey)
	if err != nil {
		return err
	}
	if !as.registry.VerifySecret(client, req.APISecret) {
		return loginFailed(clients.ErrInvalidSecret)
	}

	revokers := []func(context.Context, string, string) (bool, error){
		as.tokenCreator.RevokeAccessToken,
		as.tokenCreator.RevokeRefreshToken,
	}
	if req.TokenTypeHint == oauth2.RefreshTokenHint {
		revokers[0], revokers[1] = revokers[1], revokers[0]
	}
	for _, revoke := range revokers {
		revoked, err := revoke(ctx, req.Token, client.APIKey)
		if err != nil {
			return errors.Wrap(err, "[AuthorizationService.revoke]")
		}
		if revoked {
			as.logger.Info().Str("api_key", client.APIKey).Msg("token revoked")
			return nil
		}
	}
	return nil
}

// tokenFailure maps token.ErrTokenInvalid to TokenInvalid and leaves infrastructure errors alone.
func (as *AuthorizationService) tokenFailure(err error, what string) error {
	if errors.Is(err, token.ErrTokenInvalid) {
		return tokenInvalid(err, what)
	}
	return err
}
