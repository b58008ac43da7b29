package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/lms-oauth-gateway/auth"
	"github.com/jrsteele09/lms-oauth-gateway/internal/config"
	"github.com/jrsteele09/lms-oauth-gateway/internal/metrics"
	"github.com/jrsteele09/lms-oauth-gateway/permissions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Config is the part of the gateway configuration the HTTP layer reads.
type Config interface {
	config.EnvConfig
	config.CorsConfig
}

// Dependencies are the services the handlers call into.
type Dependencies struct {
	Auth        *auth.AuthorizationService
	Permissions *permissions.Matcher
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

type Server struct {
	mux         *http.ServeMux
	routes      []string
	config      Config
	auth        *auth.AuthorizationService
	permissions *permissions.Matcher
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

func New(cfg Config, deps Dependencies) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[server.New] config is required")
	}
	if deps.Auth == nil {
		return nil, errors.New("[server.New] authorization service is required")
	}
	if deps.Permissions == nil {
		return nil, errors.New("[server.New] permission matcher is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	s := &Server{
		mux:         http.NewServeMux(),
		config:      cfg,
		auth:        deps.Auth,
		permissions: deps.Permissions,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) logRoutes() {
	if !s.config.IsDev() {
		return
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		s.logger.Debug().Str("method", method).Str("path", path).Msg("route registered")
	}
}
