package permissions

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Rule allows a client to call routes matching Pattern with the HTTP method Verb.
// A pattern segment starting with ':' matches any single path segment, e.g. /clients/:id.
type Rule struct {
	ClientID string `json:"client_id" yaml:"client_id"`
	Pattern  string `json:"pattern" yaml:"pattern"`
	Verb     string `json:"verb" yaml:"verb"`
}

// Matches reports whether the rule covers a request for path with method verb.
// Verbs are compared case-sensitively.
func (r Rule) Matches(path, verb string) bool {
	return r.Verb == verb && MatchPattern(r.Pattern, path)
}

// MatchPattern reports whether path matches pattern segment by segment. Literal segments must be equal,
// ':param' segments match exactly one non-empty segment. Trailing slashes are significant.
func MatchPattern(pattern, path string) bool {
	patternSegments := strings.Split(pattern, "/")
	pathSegments := strings.Split(path, "/")
	if len(patternSegments) != len(pathSegments) {
		return false
	}
	for i, seg := range patternSegments {
		if strings.HasPrefix(seg, ":") && len(seg) > 1 {
			if pathSegments[i] == "" {
				return false
			}
			continue
		}
		if seg != pathSegments[i] {
			return false
		}
	}
	return true
}

// Repo persists permission rules.
type Repo interface {
	AddRule(ctx context.Context, rule Rule) error
	RulesForClient(ctx context.Context, clientID string) ([]Rule, error)
	DeleteRules(ctx context.Context, clientID string) error
}

// Matcher decides whether a client may call a route. Anything not covered by a rule is denied.
type Matcher struct {
	repo Repo
}

func NewMatcher(repo Repo) *Matcher {
	return &Matcher{repo: repo}
}

// IsAllowed reports whether clientID holds a rule matching path and verb. A lookup failure is returned
// as an error and callers must treat it as a denial.
func (m *Matcher) IsAllowed(ctx context.Context, clientID, path, verb string) (bool, error) {
	rules, err := m.repo.RulesForClient(ctx, clientID)
	if err != nil {
		return false, errors.Wrap(err, "[Matcher.IsAllowed] RulesForClient")
	}
	for _, rule := range rules {
		if rule.Matches(path, verb) {
			return true, nil
		}
	}
	return false, nil
}
