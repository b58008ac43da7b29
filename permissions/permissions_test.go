package permissions_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/lms-oauth-gateway/permissions"
	"github.com/jrsteele09/lms-oauth-gateway/storage/memory"
	"github.com/stretchr/testify/require"
)

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/clients", "/clients", true},
		{"/clients", "/clients/", false},
		{"/clients/:id", "/clients/7", true},
		{"/clients/:id", "/clients/", false},
		{"/clients/:id", "/clients/7/scopes", false},
		{"/clients/:id/scopes", "/clients/7/scopes", true},
		{"/clients/:id/scopes", "/clients/7/routes", false},
		{"/v1/:a/:b", "/v1/x/y", true},
		{"/", "/", true},
		{"/routes", "/Routes", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			require.Equal(t, tt.want, permissions.MatchPattern(tt.pattern, tt.path))
		})
	}
}

func TestMatcher(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewPermissionRepo()
	for _, r := range []permissions.Rule{
		{ClientID: "apollon", Pattern: "/clients", Verb: "GET"},
		{ClientID: "apollon", Pattern: "/clients/:id", Verb: "DELETE"},
		{ClientID: "hermes", Pattern: "/routes", Verb: "GET"},
	} {
		require.NoError(t, repo.AddRule(ctx, r))
	}
	matcher := permissions.NewMatcher(repo)

	t.Run("granted route", func(t *testing.T) {
		ok, err := matcher.IsAllowed(ctx, "apollon", "/clients/12", "DELETE")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("verb must match", func(t *testing.T) {
		ok, err := matcher.IsAllowed(ctx, "apollon", "/clients/12", "GET")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("rules are per client", func(t *testing.T) {
		ok, err := matcher.IsAllowed(ctx, "apollon", "/routes", "GET")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("client without rules is denied", func(t *testing.T) {
		ok, err := matcher.IsAllowed(ctx, "nobody", "/clients", "GET")
		require.NoError(t, err)
		require.False(t, ok)
	})
}
