package auth

import (
	"context"
	"net/url"
	"strconv"

	"github.com/jrsteele09/lms-oauth-gateway/clients"
	"github.com/jrsteele09/lms-oauth-gateway/oauth2"
	"github.com/jrsteele09/lms-oauth-gateway/token"
	"github.com/pkg/errors"
)

// Action is what the caller of Authorize must do next.
type Action int

const (
	ActionLogin Action = iota
	ActionConsent
	ActionRedirect
)

func (a Action) String() string {
	switch a {
	case ActionLogin:
		return "login"
	case ActionConsent:
		return "consent"
	case ActionRedirect:
		return "redirect"
	}
	return "unknown"
}

// LoginForm is the payload for rendering the login form.
type LoginForm struct {
	APIKey       string `json:"api_key"`
	RedirectURI  string `json:"redirect_uri"`
	ResponseType string `json:"response_type"`
}

// ConsentForm is the payload for rendering the consent form. AuthenticityToken must be posted back
// with the user's approval.
type ConsentForm struct {
	APIKey            string `json:"api_key"`
	RedirectURI       string `json:"redirect_uri"`
	ResponseType      string `json:"response_type"`
	ConsentMessage    string `json:"consent_message"`
	AuthenticityToken string `json:"authenticity_token"`
}

// AuthorizeResult is the terminal state of one Authorize call. Exactly one of Login, Consent or
// RedirectURL is set, according to Action.
type AuthorizeResult struct {
	Action      Action
	Login       *LoginForm
	Consent     *ConsentForm
	RedirectURL string
}

// Authorize runs the authorization endpoint for one request. Without credentials it asks for a login,
// with valid credentials it either asks for consent or issues a code (response_type=code) or tokens
// (response_type=token) and returns the redirect target. Nothing is persisted when it fails.
func (as *AuthorizationService) Authorize(ctx context.Context, req oauth2.AuthorizationRequest) (*AuthorizeResult, error) {
	ctx, cancel := as.callContext(ctx)
	defer cancel()

	result, err := as.authorize(ctx, req)
	if err != nil {
		return nil, as.fail(ctx, "authorize", err)
	}
	return result, nil
}

func (as *AuthorizationService) authorize(ctx context.Context, req oauth2.AuthorizationRequest) (*AuthorizeResult, error) {
	if err := requireParams(
		param("api_key", req.APIKey),
		param("redirect_uri", req.RedirectURI),
		param("response_type", req.ResponseType),
	); err != nil {
		return nil, err
	}
	responseType, ok := oauth2.ParseResponseType(req.ResponseType)
	if !ok {
		return nil, newError(ResponseType, nil, `parameter <response_type> must match "code" or "token"`)
	}

	client, err := as.lookupClient(ctx, req.APIKey)
	if err != nil {
		return nil, err
	}
	if !client.AcceptsRedirect(req.RedirectURI) {
		return nil, loginFailed(errors.Errorf("redirect_uri not registered for client %s", client.APIKey))
	}
	grant := responseType.Grant()
	if !client.AllowsGrant(grant) {
		return nil, clientDisabled(nil, grant)
	}

	if req.AuthenticityToken != "" {
		return as.confirmConsent(ctx, client, req, responseType)
	}

	if !req.HasCredentials() {
		return &AuthorizeResult{
			Action: ActionLogin,
			Login: &LoginForm{
				APIKey:       req.APIKey,
				RedirectURI:  req.RedirectURI,
				ResponseType: req.ResponseType,
			},
		}, nil
	}

	userID, err := as.verifyUser(ctx, client, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	if client.ConsentRequired {
		consented, err := as.repos.Consents.HasConsent(ctx, client.APIKey, userID)
		if err != nil {
			return nil, errors.Wrap(err, "[AuthorizationService.authorize] HasConsent")
		}
		if !consented {
			return as.askConsent(client, userID, req)
		}
	}

	return as.issueRedirect(ctx, client, userID, req.RedirectURI, responseType)
}

func (as *AuthorizationService) askConsent(client *clients.Client, userID string, req oauth2.AuthorizationRequest) (*AuthorizeResult, error) {
	authenticityToken, err := as.tokenCreator.IssueAuthenticityToken(token.ConsentGrant{
		ClientID:     client.APIKey,
		UserID:       userID,
		RedirectURI:  req.RedirectURI,
		ResponseType: req.ResponseType,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.askConsent] IssueAuthenticityToken")
	}
	return &AuthorizeResult{
		Action: ActionConsent,
		Consent: &ConsentForm{
			APIKey:            client.APIKey,
			RedirectURI:       req.RedirectURI,
			ResponseType:      req.ResponseType,
			ConsentMessage:    client.ConsentMessage,
			AuthenticityToken: authenticityToken,
		},
	}, nil
}

// confirmConsent accepts a posted consent form: the authenticity token must have been issued for this
// exact client, redirect URI and response type, and is spent by the first post. Consent is recorded
// only once the code or token has been issued.
func (as *AuthorizationService) confirmConsent(ctx context.Context, client *clients.Client, req oauth2.AuthorizationRequest, responseType oauth2.ResponseType) (*AuthorizeResult, error) {
	grant, err := as.tokenCreator.ConsumeAuthenticityToken(ctx, req.AuthenticityToken)
	if err != nil {
		return nil, as.tokenFailure(err, "authenticity token")
	}
	if grant.ClientID != client.APIKey || grant.RedirectURI != req.RedirectURI || grant.ResponseType != string(responseType) {
		return nil, tokenInvalid(errors.New("authenticity token issued for another request"), "authenticity token")
	}
	if !client.AllowsUser(grant.UserID) {
		return nil, loginFailed(errors.Errorf("user %s not allowed for client %s", grant.UserID, client.APIKey))
	}

	result, err := as.issueRedirect(ctx, client, grant.UserID, req.RedirectURI, responseType)
	if err != nil {
		return nil, err
	}
	if err := as.repos.Consents.RecordConsent(ctx, client.APIKey, grant.UserID, as.nowTime()); err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.confirmConsent] RecordConsent")
	}
	return result, nil
}

func (as *AuthorizationService) issueRedirect(ctx context.Context, client *clients.Client, userID, redirectURI string, responseType oauth2.ResponseType) (*AuthorizeResult, error) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		return nil, loginFailed(err)
	}

	switch responseType {
	case oauth2.CodeResponseType:
		code, err := as.tokenCreator.IssueCode(ctx, client.APIKey, userID, redirectURI)
		if err != nil {
			return nil, errors.Wrap(err, "[AuthorizationService.issueRedirect] IssueCode")
		}
		query := target.Query()
		query.Set("code", code.Code)
		target.RawQuery = query.Encode()
		return &AuthorizeResult{Action: ActionRedirect, RedirectURL: target.String()}, nil

	case oauth2.TokenResponseType:
		tr, err := as.issueTokenPair(ctx, client, userID, oauth2.ImplicitGrant)
		if err != nil {
			return nil, err
		}
		fragment := url.Values{}
		fragment.Set("access_token", tr.AccessToken)
		fragment.Set("token_type", tr.TokenType)
		fragment.Set("expires_in", strconv.Itoa(tr.ExpiresIn))
		if tr.RefreshToken != nil {
			fragment.Set("refresh_token", *tr.RefreshToken)
		}
		target.Fragment, target.RawFragment = "", ""
		return &AuthorizeResult{Action: ActionRedirect, RedirectURL: target.String() + "#" + fragment.Encode()}, nil
	}
	return nil, newError(ResponseType, nil, `parameter <response_type> must match "code" or "token"`)
}
