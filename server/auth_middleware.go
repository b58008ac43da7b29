package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/lms-oauth-gateway/token"
	"github.com/rs/zerolog/hlog"
)

type contextKey string

const contextKeyBearer contextKey = "bearer"

// bearer is a verified access token together with the raw string it was parsed from.
type bearer struct {
	raw   string
	token *token.AccessToken
}

func bearerFromContext(ctx context.Context) (bearer, bool) {
	b, ok := ctx.Value(contextKeyBearer).(bearer)
	return b, ok
}

// RequireBearer rejects requests without a valid access token (401) and requests whose client has no
// permission rule for the path and method (403).
func (s *Server) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		params, err := parseParams(r)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "malformed request body", "invalid_request")
			return
		}
		raw := bearerToken(r, params)
		at, err := s.auth.VerifyBearer(ctx, raw)
		if err != nil {
			s.writeError(w, err)
			return
		}

		allowed, err := s.permissions.IsAllowed(ctx, at.ClientID, r.URL.Path, r.Method)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Str("api_key", at.ClientID).Msg("permission lookup failed")
			s.writeError(w, err)
			return
		}
		if !allowed {
			hlog.FromRequest(r).Warn().Str("api_key", at.ClientID).Str("path", r.URL.Path).Msg("permission denied")
			s.metrics.GrantFailed("permission_denied")
			writeFailure(w, http.StatusForbidden, "client is not permitted to call this route", "permission_denied")
			return
		}

		ctx = context.WithValue(ctx, contextKeyBearer, bearer{raw: raw, token: at})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
