package server

import "net/http"

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteOAuth2Auth, s.api(RouteOAuth2Auth, s.AuthorizeGet()))
	s.RegisterRouteHandler("POST "+RouteOAuth2Auth, s.api(RouteOAuth2Auth, s.AuthorizePost()))
	s.RegisterRouteHandler("POST "+RouteOAuth2Token, s.api(RouteOAuth2Token, s.Token()))
	s.RegisterRouteHandler("GET "+RouteOAuth2TokenInfo, s.api(RouteOAuth2TokenInfo, s.TokenInfo()))
	s.RegisterRouteHandler("POST "+RouteOAuth2Revoke, s.api(RouteOAuth2Revoke, s.Revoke()))
	s.RegisterRouteHandler("POST "+RouteRToken2Bearer, s.api(RouteRToken2Bearer, s.RToken2Bearer()))

	// Bearer authenticated, subject to the client's permission rules.
	s.RegisterRouteHandler("GET "+RouteOAuth2Refresh, s.api(RouteOAuth2Refresh, s.RefreshToken(), s.RequireBearer))
	s.RegisterRouteHandler("GET "+RouteAppAuthToken, s.api(RouteAppAuthToken, s.AppAuthToken(), s.RequireBearer))

	s.RegisterRouteHandler("OPTIONS /", s.api("preflight", http.NotFound))
	s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics.Handler())
	s.RegisterRouteHandler("GET "+RouteHealth, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeSuccess(w, http.StatusOK, struct{}{})
	}))
}
