package server

// Route paths served by the gateway.
const (
	RouteOAuth2Auth      = "/v1/oauth2/auth"
	RouteOAuth2Token     = "/v1/oauth2/token"
	RouteOAuth2Refresh   = "/v1/oauth2/refresh"
	RouteOAuth2TokenInfo = "/v1/oauth2/tokeninfo"
	RouteOAuth2Revoke    = "/v1/oauth2/revoke"
	RouteRToken2Bearer   = "/v1/ilauth/rtoken2bearer"
	RouteAppAuthToken    = "/v2/ilias-app/auth-token"
	RouteMetrics         = "/metrics"
	RouteHealth          = "/healthz"
)
