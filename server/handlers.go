package server

import (
	"net/http"

	"github.com/jrsteele09/lms-oauth-gateway/auth"
	"github.com/jrsteele09/lms-oauth-gateway/oauth2"
)

const sessionBridgeGrant = "session_bridge"

// loginResponse and consentResponse flatten the form payload beside the action.
type loginResponse struct {
	Action string `json:"action"`
	*auth.LoginForm
}

type consentResponse struct {
	Action string `json:"action"`
	*auth.ConsentForm
}

type refreshResponse struct {
	RefreshToken string `json:"refresh_token"`
}

type exchangeResponse struct {
	Token string `json:"token"`
}

// withParams parses the request parameters before calling h.
func withParams(h func(w http.ResponseWriter, r *http.Request, p requestParams)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := parseParams(r)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "malformed request body", "invalid_request")
			return
		}
		h(w, r, params)
	}
}

// AuthorizeGet starts the code or implicit flow. Credentials are never read from a GET, so the
// result is the login form or an error.
func (s *Server) AuthorizeGet() http.HandlerFunc {
	return withParams(func(w http.ResponseWriter, r *http.Request, p requestParams) {
		result, err := s.auth.Authorize(r.Context(), oauth2.AuthorizationRequest{
			APIKey:       p.get("api_key"),
			RedirectURI:  p.get("redirect_uri"),
			ResponseType: p.get("response_type"),
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeAuthorizeResult(w, r, result)
	})
}

// AuthorizePost continues the flow with the login form or the consent approval.
func (s *Server) AuthorizePost() http.HandlerFunc {
	return withParams(func(w http.ResponseWriter, r *http.Request, p requestParams) {
		result, err := s.auth.Authorize(r.Context(), oauth2.AuthorizationRequest{
			APIKey:            p.get("api_key"),
			RedirectURI:       p.get("redirect_uri"),
			ResponseType:      p.get("response_type"),
			Username:          p.get("username"),
			Password:          p.get("password"),
			AuthenticityToken: p.get("authenticity_token"),
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeAuthorizeResult(w, r, result)
	})
}

func (s *Server) writeAuthorizeResult(w http.ResponseWriter, r *http.Request, result *auth.AuthorizeResult) {
	switch result.Action {
	case auth.ActionRedirect:
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, result.RedirectURL, http.StatusSeeOther)
	case auth.ActionConsent:
		writeSuccess(w, http.StatusOK, consentResponse{Action: result.Action.String(), ConsentForm: result.Consent})
	default:
		writeSuccess(w, http.StatusOK, loginResponse{Action: result.Action.String(), LoginForm: result.Login})
	}
}

func (s *Server) Token() http.HandlerFunc {
	return withParams(func(w http.ResponseWriter, r *http.Request, p requestParams) {
		grantType := p.get("grant_type")
		resp, err := s.auth.Token(r.Context(), oauth2.TokenRequest{
			GrantType:    grantType,
			APIKey:       p.get("api_key"),
			APISecret:    p.get("api_secret"),
			Username:     p.get("username"),
			Password:     p.get("password"),
			Code:         p.get("code"),
			RedirectURI:  p.get("redirect_uri"),
			RefreshToken: p.get("refresh_token"),
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.metrics.TokenIssued(grantType)
		w.Header().Set("Pragma", "no-cache")
		writeSuccess(w, http.StatusOK, resp)
	})
}

// RefreshToken issues a refresh token for the client and user of the presented bearer.
func (s *Server) RefreshToken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := bearerFromContext(r.Context())
		if !ok {
			writeFailure(w, http.StatusUnauthorized, "bearer token required", auth.TokenInvalid.String())
			return
		}
		rec, err := s.auth.RefreshForBearer(r.Context(), b.token)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, refreshResponse{RefreshToken: rec.Token})
	}
}

func (s *Server) TokenInfo() http.HandlerFunc {
	return withParams(func(w http.ResponseWriter, r *http.Request, p requestParams) {
		info, err := s.auth.TokenInfo(r.Context(), bearerToken(r, p))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, info)
	})
}

// Revoke answers 200 for unknown tokens as well, so callers cannot probe for valid ones.
func (s *Server) Revoke() http.HandlerFunc {
	return withParams(func(w http.ResponseWriter, r *http.Request, p requestParams) {
		err := s.auth.Revoke(r.Context(), oauth2.RevokeRequest{
			Token:         p.get("token"),
			TokenTypeHint: oauth2.TokenTypeHint(p.get("token_type_hint")),
			APIKey:        p.get("api_key"),
			APISecret:     p.get("api_secret"),
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, struct{}{})
	})
}

// RToken2Bearer exchanges a host session for a bearer token.
func (s *Server) RToken2Bearer() http.HandlerFunc {
	return withParams(func(w http.ResponseWriter, r *http.Request, p requestParams) {
		resp, err := s.auth.SessionToBearer(r.Context(), oauth2.SessionBridgeRequest{
			APIKey:    p.get("api_key"),
			UserID:    p.get("user_id"),
			RToken:    p.get("rtoken"),
			SessionID: p.get("session_id"),
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.metrics.TokenIssued(sessionBridgeGrant)
		writeSuccess(w, http.StatusOK, resp)
	})
}

// AppAuthToken hands the bearer's user a short-lived exchange token for a passwordless host login.
func (s *Server) AppAuthToken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := bearerFromContext(r.Context())
		if !ok {
			writeFailure(w, http.StatusUnauthorized, "bearer token required", auth.TokenInvalid.String())
			return
		}
		et, err := s.auth.BearerToExchangeToken(r.Context(), b.raw)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, exchangeResponse{Token: et.Token})
	}
}
