// Package provision seeds a store from a YAML file: clients, permission rules, users and host sessions.
package provision

import (
	"context"
	"crypto/rand"
	"math/big"
	"os"

	"github.com/jrsteele09/lms-oauth-gateway/clients"
	apperrors "github.com/jrsteele09/lms-oauth-gateway/internal/errors"
	"github.com/jrsteele09/lms-oauth-gateway/permissions"
	"github.com/jrsteele09/lms-oauth-gateway/sessions"
	"github.com/jrsteele09/lms-oauth-gateway/storage"
	"github.com/jrsteele09/lms-oauth-gateway/users"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	PrimaryClientKey   = "apollon"
	generatedSecretLen = 10
	secretAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

type Seed struct {
	Clients     []ClientSeed       `yaml:"clients"`
	Permissions []permissions.Rule `yaml:"permissions"`
	Users       []UserSeed         `yaml:"users"`
	Sessions    []sessions.Session `yaml:"sessions"`
}

// ClientSeed is a client entry. Unset grant and refresh flags take the registry defaults.
type ClientSeed struct {
	APIKey                string              `yaml:"api_key"`
	APISecret             string              `yaml:"api_secret"`
	Description           string              `yaml:"description"`
	RedirectURI           string              `yaml:"redirect_uri"`
	ConsentRequired       bool                `yaml:"consent_required"`
	ConsentMessage        string              `yaml:"consent_message"`
	Grants                *clients.GrantFlags `yaml:"grants"`
	Refresh               *clients.GrantFlags `yaml:"refresh"`
	UserRestrictionActive bool                `yaml:"user_restriction_active"`
	DefaultUserID         string              `yaml:"default_user_id"`
	AllowedUserIDs        []string            `yaml:"allowed_user_ids"`
}

// UserSeed carries either a plain password, hashed on apply, or a bcrypt hash.
type UserSeed struct {
	ID           string `yaml:"id"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
	Blocked      bool   `yaml:"blocked"`
}

// Default is the seed applied when no file is configured: the primary apollon client, the rules for
// the client administration routes and the bearer guarded gateway routes.
func Default() *Seed {
	return &Seed{
		Clients: []ClientSeed{{APIKey: PrimaryClientKey}},
		Permissions: []permissions.Rule{
			{ClientID: PrimaryClientKey, Pattern: "/clients", Verb: "GET"},
			{ClientID: PrimaryClientKey, Pattern: "/clients/:id", Verb: "PUT"},
			{ClientID: PrimaryClientKey, Pattern: "/clients/:id", Verb: "DELETE"},
			{ClientID: PrimaryClientKey, Pattern: "/clients/", Verb: "POST"},
			{ClientID: PrimaryClientKey, Pattern: "/routes", Verb: "GET"},
			{ClientID: PrimaryClientKey, Pattern: "/v1/oauth2/refresh", Verb: "GET"},
			{ClientID: PrimaryClientKey, Pattern: "/v2/ilias-app/auth-token", Verb: "GET"},
		},
	}
}

func Load(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "[provision.Load] read")
	}
	return Parse(data)
}

func Parse(data []byte) (*Seed, error) {
	seed := &Seed{}
	if err := yaml.Unmarshal(data, seed); err != nil {
		return nil, errors.Wrap(err, "[provision.Parse] yaml")
	}
	for i, c := range seed.Clients {
		if c.APIKey == "" {
			return nil, errors.Errorf("[provision.Parse] client %d has no api_key", i)
		}
	}
	for i, u := range seed.Users {
		if u.Username == "" {
			return nil, errors.Errorf("[provision.Parse] user %d has no username", i)
		}
	}
	for i, s := range seed.Sessions {
		if s.SessionID == "" || s.UserID == "" {
			return nil, errors.Errorf("[provision.Parse] session %d needs session_id and user_id", i)
		}
	}
	return seed, nil
}

// Summary reports what Apply wrote. GeneratedSecrets maps api keys to secrets created because the
// seed left them empty; they are shown once so the operator can hand them out.
type Summary struct {
	Clients          int
	Rules            int
	Users            int
	Sessions         int
	GeneratedSecrets map[string]string
}

// Apply writes the seed. Existing clients keep their secret when the seed leaves it empty.
func Apply(ctx context.Context, repos storage.Repos, seed *Seed) (*Summary, error) {
	summary := &Summary{GeneratedSecrets: map[string]string{}}

	for _, cs := range seed.Clients {
		client, generated, err := cs.build(ctx, repos.Clients)
		if err != nil {
			return nil, err
		}
		if generated {
			summary.GeneratedSecrets[client.APIKey] = client.APISecret
		}
		if err := repos.Clients.Upsert(ctx, client); err != nil {
			return nil, errors.Wrapf(err, "[provision.Apply] client %s", client.APIKey)
		}
		summary.Clients++
	}

	for _, rule := range seed.Permissions {
		if err := repos.Permissions.AddRule(ctx, rule); err != nil {
			return nil, errors.Wrapf(err, "[provision.Apply] rule %s %s", rule.Verb, rule.Pattern)
		}
		summary.Rules++
	}

	for _, us := range seed.Users {
		hash := us.PasswordHash
		if us.Password != "" {
			var err error
			if hash, err = users.HashPassword(us.Password); err != nil {
				return nil, errors.Wrapf(err, "[provision.Apply] hash password for %s", us.Username)
			}
		}
		user := &users.User{ID: us.ID, Username: us.Username, PasswordHash: hash, Blocked: us.Blocked}
		if err := repos.Users.Upsert(ctx, user); err != nil {
			return nil, errors.Wrapf(err, "[provision.Apply] user %s", us.Username)
		}
		summary.Users++
	}

	for i := range seed.Sessions {
		if err := repos.Sessions.Upsert(ctx, &seed.Sessions[i]); err != nil {
			return nil, errors.Wrapf(err, "[provision.Apply] session %s", seed.Sessions[i].SessionID)
		}
		summary.Sessions++
	}
	return summary, nil
}

// build returns the client to store and whether its secret was minted here.
func (cs ClientSeed) build(ctx context.Context, repo clients.Repo) (*clients.Client, bool, error) {
	client := &clients.Client{
		APIKey:                cs.APIKey,
		APISecret:             cs.APISecret,
		Description:           cs.Description,
		RedirectURI:           cs.RedirectURI,
		ConsentRequired:       cs.ConsentRequired,
		ConsentMessage:        cs.ConsentMessage,
		Grants:                clients.DefaultGrantFlags(),
		Refresh:               clients.DefaultRefreshFlags(),
		UserRestrictionActive: cs.UserRestrictionActive,
		DefaultUserID:         cs.DefaultUserID,
		AllowedUserIDs:        cs.AllowedUserIDs,
	}
	if cs.Grants != nil {
		client.Grants = *cs.Grants
	}
	if cs.Refresh != nil {
		client.Refresh = *cs.Refresh
	}
	if client.APISecret != "" {
		return client, false, nil
	}

	existing, err := repo.Get(ctx, client.APIKey)
	switch {
	case err == nil:
		client.APISecret = existing.APISecret
		return client, false, nil
	case apperrors.Is(err, apperrors.ErrNotFound):
		if client.APISecret, err = randomSecret(); err != nil {
			return nil, false, err
		}
		return client, true, nil
	default:
		return nil, false, errors.Wrapf(err, "[provision.Apply] look up client %s", client.APIKey)
	}
}

func randomSecret() (string, error) {
	out := make([]byte, generatedSecretLen)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(secretAlphabet))))
		if err != nil {
			return "", errors.Wrap(err, "[provision] random secret")
		}
		out[i] = secretAlphabet[n.Int64()]
	}
	return string(out), nil
}
