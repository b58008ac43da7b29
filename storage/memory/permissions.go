package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/jrsteele09/lms-oauth-gateway/permissions"
)

var _ permissions.Repo = (*PermissionRepo)(nil)

type PermissionRepo struct {
	rules map[string][]permissions.Rule
	lock  sync.RWMutex
}

func NewPermissionRepo() *PermissionRepo {
	return &PermissionRepo{rules: make(map[string][]permissions.Rule)}
}

func (r *PermissionRepo) AddRule(_ context.Context, rule permissions.Rule) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if slices.Contains(r.rules[rule.ClientID], rule) {
		return nil
	}
	r.rules[rule.ClientID] = append(r.rules[rule.ClientID], rule)
	return nil
}

func (r *PermissionRepo) RulesForClient(_ context.Context, clientID string) ([]permissions.Rule, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return slices.Clone(r.rules[clientID]), nil
}

func (r *PermissionRepo) DeleteRules(_ context.Context, clientID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.rules, clientID)
	return nil
}
