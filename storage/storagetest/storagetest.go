// Package storagetest is a contract suite every storage backend runs against its own Repos.
package storagetest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/lms-oauth-gateway/clients"
	apperrors "github.com/jrsteele09/lms-oauth-gateway/internal/errors"
	"github.com/jrsteele09/lms-oauth-gateway/permissions"
	"github.com/jrsteele09/lms-oauth-gateway/sessions"
	"github.com/jrsteele09/lms-oauth-gateway/storage"
	"github.com/jrsteele09/lms-oauth-gateway/token"
	"github.com/jrsteele09/lms-oauth-gateway/users"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const racers = 16

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Run exercises every repository returned by newRepos. newRepos is called once per sub-test and must
// return an empty store.
func Run(t *testing.T, newRepos func(t *testing.T) storage.Repos) {
	t.Run("clients", func(t *testing.T) { testClients(t, newRepos(t)) })
	t.Run("consents", func(t *testing.T) { testConsents(t, newRepos(t)) })
	t.Run("permissions", func(t *testing.T) { testPermissions(t, newRepos(t)) })
	t.Run("users", func(t *testing.T) { testUsers(t, newRepos(t)) })
	t.Run("sessions", func(t *testing.T) { testSessions(t, newRepos(t)) })
	t.Run("codes", func(t *testing.T) { TestCodes(t, newRepos(t).Tokens.Codes) })
	t.Run("refresh", func(t *testing.T) { TestRefresh(t, newRepos(t).Tokens.Refresh) })
	t.Run("exchange", func(t *testing.T) { TestExchange(t, newRepos(t).Tokens.Exchange) })
	t.Run("revocations", func(t *testing.T) { TestRevocations(t, newRepos(t).Tokens.Revoked) })
}

func testClients(t *testing.T, repos storage.Repos) {
	ctx := context.Background()
	repo := repos.Clients

	_, err := repo.Get(ctx, "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	client := &clients.Client{
		APIKey:                "apollon",
		APISecret:             "secret",
		RedirectURI:           "https://lms.example.com/cb",
		ConsentRequired:       true,
		ConsentMessage:        "Allow apollon?",
		Grants:                clients.DefaultGrantFlags(),
		Refresh:               clients.DefaultRefreshFlags(),
		UserRestrictionActive: true,
		DefaultUserID:         "6",
		AllowedUserIDs:        []string{"6", "13"},
	}
	require.NoError(t, repo.Upsert(ctx, client))

	got, err := repo.Get(ctx, "apollon")
	require.NoError(t, err)
	require.Equal(t, client, got)

	client.Grants.Implicit = false
	client.AllowedUserIDs = []string{"6"}
	require.NoError(t, repo.Upsert(ctx, client))
	got, err = repo.Get(ctx, "apollon")
	require.NoError(t, err)
	require.False(t, got.Grants.Implicit)
	require.Equal(t, []string{"6"}, got.AllowedUserIDs)

	require.NoError(t, repo.Upsert(ctx, &clients.Client{APIKey: "zeus", APISecret: "s"}))
	list, err := repo.List(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "apollon", list[0].APIKey)

	list, err = repo.List(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "zeus", list[0].APIKey)

	require.NoError(t, repo.Delete(ctx, "zeus"))
	_, err = repo.Get(ctx, "zeus")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func testConsents(t *testing.T, repos storage.Repos) {
	ctx := context.Background()
	repo := repos.Consents

	ok, err := repo.HasConsent(ctx, "apollon", "6")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, repo.RecordConsent(ctx, "apollon", "6", baseTime))
	require.NoError(t, repo.RecordConsent(ctx, "apollon", "6", baseTime.Add(time.Minute)))

	ok, err = repo.HasConsent(ctx, "apollon", "6")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.HasConsent(ctx, "apollon", "7")
	require.NoError(t, err)
	require.False(t, ok)
}

func testPermissions(t *testing.T, repos storage.Repos) {
	ctx := context.Background()
	repo := repos.Permissions

	rules, err := repo.RulesForClient(ctx, "apollon")
	require.NoError(t, err)
	require.Empty(t, rules)

	for _, r := range []permissions.Rule{
		{ClientID: "apollon", Pattern: "/clients", Verb: "GET"},
		{ClientID: "apollon", Pattern: "/clients/:id", Verb: "PUT"},
		{ClientID: "apollon", Pattern: "/clients/:id", Verb: "PUT"},
		{ClientID: "other", Pattern: "/routes", Verb: "GET"},
	} {
		require.NoError(t, repo.AddRule(ctx, r))
	}

	rules, err = repo.RulesForClient(ctx, "apollon")
	require.NoError(t, err)
	require.ElementsMatch(t, []permissions.Rule{
		{ClientID: "apollon", Pattern: "/clients", Verb: "GET"},
		{ClientID: "apollon", Pattern: "/clients/:id", Verb: "PUT"},
	}, rules)

	require.NoError(t, repo.DeleteRules(ctx, "apollon"))
	rules, err = repo.RulesForClient(ctx, "apollon")
	require.NoError(t, err)
	require.Empty(t, rules)

	rules, err = repo.RulesForClient(ctx, "other")
	require.NoError(t, err)
	require.Len(t, rules, 1)
}

func testUsers(t *testing.T, repos storage.Repos) {
	ctx := context.Background()
	repo := repos.Users

	_, err := repo.GetByUsername(ctx, "root")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, repo.Upsert(ctx, &users.User{ID: "6", Username: "root", PasswordHash: "hash"}))

	u, err := repo.GetByUsername(ctx, "root")
	require.NoError(t, err)
	require.Equal(t, "6", u.ID)
	require.Equal(t, "hash", u.PasswordHash)

	u, err = repo.GetByID(ctx, "6")
	require.NoError(t, err)
	require.Equal(t, "root", u.Username)

	require.NoError(t, repo.Upsert(ctx, &users.User{ID: "6", Username: "admin", PasswordHash: "hash2", Blocked: true}))
	_, err = repo.GetByUsername(ctx, "root")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	u, err = repo.GetByUsername(ctx, "admin")
	require.NoError(t, err)
	require.True(t, u.Blocked)
}

func testSessions(t *testing.T, repos storage.Repos) {
	ctx := context.Background()
	repo := repos.Sessions

	_, err := repo.Get(ctx, "sid")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	s := &sessions.Session{SessionID: "sid", UserID: "6", RToken: "rt", ExpiresAt: baseTime}
	require.NoError(t, repo.Upsert(ctx, s))

	got, err := repo.Get(ctx, "sid")
	require.NoError(t, err)
	require.Equal(t, "6", got.UserID)
	require.Equal(t, "rt", got.RToken)
	require.True(t, baseTime.Equal(got.ExpiresAt))

	require.NoError(t, repo.Delete(ctx, "sid"))
	_, err = repo.Get(ctx, "sid")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

// TestCodes checks exactly-once redemption of authorization codes.
func TestCodes(t *testing.T, repo token.CodeRepo) {
	ctx := context.Background()

	t.Run("redeem once", func(t *testing.T) {
		code := newCode("code-1", baseTime.Add(10*time.Minute))
		require.NoError(t, repo.SaveCode(ctx, code))

		got, err := repo.ConsumeCode(ctx, "code-1", baseTime)
		require.NoError(t, err)
		require.Equal(t, "apollon", got.ClientID)
		require.Equal(t, "6", got.UserID)
		require.Equal(t, "https://lms.example.com/cb", got.RedirectURI)

		_, err = repo.ConsumeCode(ctx, "code-1", baseTime)
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("expired code is not redeemable", func(t *testing.T) {
		require.NoError(t, repo.SaveCode(ctx, newCode("code-2", baseTime.Add(time.Minute))))
		_, err := repo.ConsumeCode(ctx, "code-2", baseTime.Add(time.Minute))
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := repo.ConsumeCode(ctx, "nope", baseTime)
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("concurrent redemption succeeds once", func(t *testing.T) {
		require.NoError(t, repo.SaveCode(ctx, newCode("code-race", baseTime.Add(time.Minute))))

		var successes atomic.Int32
		var g errgroup.Group
		for range racers {
			g.Go(func() error {
				_, err := repo.ConsumeCode(ctx, "code-race", baseTime)
				if err == nil {
					successes.Add(1)
					return nil
				}
				if apperrors.Is(err, apperrors.ErrNotFound) {
					return nil
				}
				return err
			})
		}
		require.NoError(t, g.Wait())
		require.Equal(t, int32(1), successes.Load())
	})

	t.Run("purge drops expired codes", func(t *testing.T) {
		require.NoError(t, repo.SaveCode(ctx, newCode("code-old", baseTime)))
		require.NoError(t, repo.SaveCode(ctx, newCode("code-new", baseTime.Add(time.Hour))))
		require.NoError(t, repo.PurgeExpiredCodes(ctx, baseTime.Add(time.Minute)))

		_, err := repo.ConsumeCode(ctx, "code-old", baseTime.Add(-time.Hour))
		require.ErrorIs(t, err, apperrors.ErrNotFound)
		_, err = repo.ConsumeCode(ctx, "code-new", baseTime)
		require.NoError(t, err)
	})
}

func newCode(code string, expiresAt time.Time) *token.AuthorizationCode {
	return &token.AuthorizationCode{
		Code:        code,
		ClientID:    "apollon",
		UserID:      "6",
		RedirectURI: "https://lms.example.com/cb",
		IssuedAt:    baseTime,
		ExpiresAt:   expiresAt,
	}
}

// TestRefresh checks single-record-per-owner, rotation and the reuse budget.
func TestRefresh(t *testing.T, repo token.RefreshRepo) {
	ctx := context.Background()
	expires := baseTime.Add(24 * time.Hour)

	t.Run("save replaces the owner's record and counts resets", func(t *testing.T) {
		first, err := repo.SaveRefresh(ctx, newRefresh("rt-a1", "a", 3, expires))
		require.NoError(t, err)
		require.Equal(t, 0, first.NumResets)

		second, err := repo.SaveRefresh(ctx, newRefresh("rt-a2", "a", 3, expires))
		require.NoError(t, err)
		require.Equal(t, 1, second.NumResets)

		_, err = repo.GetRefresh(ctx, "rt-a1")
		require.ErrorIs(t, err, apperrors.ErrNotFound)

		got, err := repo.GetRefresh(ctx, "rt-a2")
		require.NoError(t, err)
		require.Equal(t, 3, got.NumRefreshLeft)
		require.Equal(t, 1, got.NumResets)
	})

	t.Run("rotation decrements and invalidates the old token", func(t *testing.T) {
		_, err := repo.SaveRefresh(ctx, newRefresh("rt-b1", "b", 2, expires))
		require.NoError(t, err)

		now := baseTime.Add(time.Minute)
		rec, err := repo.RotateRefresh(ctx, "rt-b1", "rt-b2", now, expires.Add(time.Hour))
		require.NoError(t, err)
		require.Equal(t, "rt-b2", rec.Token)
		require.Equal(t, 1, rec.NumRefreshLeft)
		require.True(t, now.Equal(rec.LastRefresh))
		require.True(t, expires.Add(time.Hour).Equal(rec.ExpiresAt))

		_, err = repo.RotateRefresh(ctx, "rt-b1", "rt-bx", now, expires)
		require.ErrorIs(t, err, apperrors.ErrNotFound)

		rec, err = repo.RotateRefresh(ctx, "rt-b2", "rt-b3", now, expires)
		require.NoError(t, err)
		require.Equal(t, 0, rec.NumRefreshLeft)

		_, err = repo.RotateRefresh(ctx, "rt-b3", "rt-b4", now, expires)
		require.ErrorIs(t, err, apperrors.ErrExhausted)
	})

	t.Run("expired token cannot rotate", func(t *testing.T) {
		_, err := repo.SaveRefresh(ctx, newRefresh("rt-c1", "c", 5, baseTime))
		require.NoError(t, err)
		_, err = repo.RotateRefresh(ctx, "rt-c1", "rt-c2", baseTime, expires)
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("concurrent rotation of one token succeeds once", func(t *testing.T) {
		_, err := repo.SaveRefresh(ctx, newRefresh("rt-race", "race", 10, expires))
		require.NoError(t, err)

		var successes atomic.Int32
		var g errgroup.Group
		for i := range racers {
			g.Go(func() error {
				_, err := repo.RotateRefresh(ctx, "rt-race", fmt.Sprintf("rt-race-%d", i), baseTime, expires)
				if err == nil {
					successes.Add(1)
					return nil
				}
				if apperrors.Is(err, apperrors.ErrNotFound) {
					return nil
				}
				return err
			})
		}
		require.NoError(t, g.Wait())
		require.Equal(t, int32(1), successes.Load())
	})

	t.Run("delete", func(t *testing.T) {
		_, err := repo.SaveRefresh(ctx, newRefresh("rt-d1", "d", 1, expires))
		require.NoError(t, err)
		require.NoError(t, repo.DeleteRefresh(ctx, "rt-d1"))
		_, err = repo.GetRefresh(ctx, "rt-d1")
		require.ErrorIs(t, err, apperrors.ErrNotFound)

		rec, err := repo.SaveRefresh(ctx, newRefresh("rt-d2", "d", 1, expires))
		require.NoError(t, err)
		require.Equal(t, 0, rec.NumResets, "a deleted chain starts over")
	})

	t.Run("purge drops expired records only", func(t *testing.T) {
		cutoff := baseTime.Add(time.Minute)
		_, err := repo.SaveRefresh(ctx, newRefresh("rt-e1", "e", 1, cutoff))
		require.NoError(t, err)
		_, err = repo.SaveRefresh(ctx, newRefresh("rt-f1", "f", 1, expires))
		require.NoError(t, err)

		require.NoError(t, repo.PurgeExpiredRefresh(ctx, cutoff))
		_, err = repo.GetRefresh(ctx, "rt-e1")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
		_, err = repo.GetRefresh(ctx, "rt-f1")
		require.NoError(t, err)

		rec, err := repo.SaveRefresh(ctx, newRefresh("rt-e2", "e", 1, expires))
		require.NoError(t, err)
		require.Equal(t, 0, rec.NumResets, "a purged chain starts over")
	})
}

func newRefresh(tok, user string, uses int, expiresAt time.Time) *token.RefreshRecord {
	return &token.RefreshRecord{
		Token:          tok,
		ClientID:       "apollon",
		UserID:         user,
		NumRefreshLeft: uses,
		IssuedAt:       baseTime,
		LastRefresh:    baseTime,
		ExpiresAt:      expiresAt,
	}
}

// TestExchange checks the find-or-create contract of exchange tokens.
func TestExchange(t *testing.T, repo token.ExchangeRepo) {
	ctx := context.Background()
	ttl := time.Minute

	t.Run("second call within ttl returns the same token", func(t *testing.T) {
		first, err := repo.FindOrCreateExchange(ctx, newExchange("ex-1", "6", baseTime.Add(ttl)), baseTime)
		require.NoError(t, err)
		require.Equal(t, "ex-1", first.Token)

		second, err := repo.FindOrCreateExchange(ctx, newExchange("ex-2", "6", baseTime.Add(30*time.Second+ttl)), baseTime.Add(30*time.Second))
		require.NoError(t, err)
		require.Equal(t, "ex-1", second.Token)
	})

	t.Run("after expiry a new token is created", func(t *testing.T) {
		later := baseTime.Add(ttl)
		third, err := repo.FindOrCreateExchange(ctx, newExchange("ex-3", "6", later.Add(ttl)), later)
		require.NoError(t, err)
		require.Equal(t, "ex-3", third.Token)
	})

	t.Run("concurrent callers share one token", func(t *testing.T) {
		tokens := make([]string, racers)
		var g errgroup.Group
		for i := range racers {
			g.Go(func() error {
				et, err := repo.FindOrCreateExchange(ctx, newExchange(fmt.Sprintf("ex-race-%d", i), "13", baseTime.Add(ttl)), baseTime)
				if err != nil {
					return err
				}
				tokens[i] = et.Token
				return nil
			})
		}
		require.NoError(t, g.Wait())
		for _, tok := range tokens {
			require.Equal(t, tokens[0], tok)
		}
	})

	t.Run("purge keeps live tokens", func(t *testing.T) {
		cutoff := baseTime.Add(ttl)
		_, err := repo.FindOrCreateExchange(ctx, newExchange("ex-p1", "p1", cutoff), baseTime)
		require.NoError(t, err)
		_, err = repo.FindOrCreateExchange(ctx, newExchange("ex-p2", "p2", cutoff.Add(ttl)), baseTime)
		require.NoError(t, err)

		require.NoError(t, repo.PurgeExpiredExchange(ctx, cutoff))

		live, err := repo.FindOrCreateExchange(ctx, newExchange("ex-p2b", "p2", cutoff.Add(2*ttl)), cutoff)
		require.NoError(t, err)
		require.Equal(t, "ex-p2", live.Token)
		fresh, err := repo.FindOrCreateExchange(ctx, newExchange("ex-p1b", "p1", cutoff.Add(ttl)), cutoff)
		require.NoError(t, err)
		require.Equal(t, "ex-p1b", fresh.Token)
	})
}

func newExchange(tok, user string, expiresAt time.Time) *token.ExchangeToken {
	return &token.ExchangeToken{Token: tok, UserID: user, ExpiresAt: expiresAt}
}

// TestRevocations checks the jti deny-list.
func TestRevocations(t *testing.T, repo token.RevocationRepo) {
	ctx := context.Background()
	expires := baseTime.Add(time.Hour)

	revoked, err := repo.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)

	first, err := repo.Revoke(ctx, "jti-1", expires, baseTime)
	require.NoError(t, err)
	require.True(t, first)
	revoked, err = repo.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)

	t.Run("second revoke is not first", func(t *testing.T) {
		first, err := repo.Revoke(ctx, "jti-1", expires, baseTime)
		require.NoError(t, err)
		require.False(t, first)
	})

	t.Run("entries outlive purge until the token expires", func(t *testing.T) {
		require.NoError(t, repo.PurgeRevoked(ctx, baseTime))
		revoked, err := repo.IsRevoked(ctx, "jti-1")
		require.NoError(t, err)
		require.True(t, revoked)
	})

	t.Run("concurrent revoke has one winner", func(t *testing.T) {
		var winners atomic.Int32
		var g errgroup.Group
		for range racers {
			g.Go(func() error {
				first, err := repo.Revoke(ctx, "jti-race", expires, baseTime)
				if first {
					winners.Add(1)
				}
				return err
			})
		}
		require.NoError(t, g.Wait())
		require.Equal(t, int32(1), winners.Load())
	})
}
