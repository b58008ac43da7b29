package config

import (
	"maps"
	"slices"
	"strings"
)

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type AllowedOrigins map[string]struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	if _, ok := a["*"]; ok {
		return true
	}
	_, ok := a[origin]
	return ok
}

// String lists the origins sorted, for logs.
func (a AllowedOrigins) String() string {
	return strings.Join(slices.Sorted(maps.Keys(a)), ", ")
}

func (s *Settings) GetAllowedOrigins() AllowedOrigins {
	origins := make(AllowedOrigins, len(s.AllowedOrigins))
	for _, o := range s.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = struct{}{}
		}
	}
	return origins
}

func (s *Settings) GetAllowedMethods() string {
	return "GET, POST, OPTIONS"
}

func (s *Settings) GetAllowedHeaders() string {
	return "Content-Type, Authorization"
}
