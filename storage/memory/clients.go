package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/lms-oauth-gateway/clients"
	apperrors "github.com/jrsteele09/lms-oauth-gateway/internal/errors"
)

var _ clients.Repo = (*ClientRepo)(nil)

type ClientRepo struct {
	clients map[string]clients.Client
	lock    sync.RWMutex
}

func NewClientRepo() *ClientRepo {
	return &ClientRepo{
		clients: make(map[string]clients.Client),
	}
}

func (r *ClientRepo) Upsert(_ context.Context, client *clients.Client) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	c := *client
	c.AllowedUserIDs = slices.Clone(client.AllowedUserIDs)
	r.clients[client.APIKey] = c
	return nil
}

func (r *ClientRepo) Delete(_ context.Context, apiKey string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.clients[apiKey]; !ok {
		return apperrors.Wrapf(apperrors.ErrNotFound, "client %s", apiKey)
	}
	delete(r.clients, apiKey)
	return nil
}

func (r *ClientRepo) Get(_ context.Context, apiKey string) (*clients.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	client, ok := r.clients[apiKey]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "client %s", apiKey)
	}
	client.AllowedUserIDs = slices.Clone(client.AllowedUserIDs)
	return &client, nil
}

func (r *ClientRepo) List(_ context.Context, offset, limit int) ([]*clients.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*clients.Client, 0, len(r.clients))
	for _, v := range r.clients {
		c := v
		list = append(list, &c)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].APIKey < list[j].APIKey
	})
	return page(list, offset, limit), nil
}

var _ clients.ConsentRepo = (*ConsentRepo)(nil)

type ConsentRepo struct {
	consents map[[2]string]time.Time
	lock     sync.RWMutex
}

func NewConsentRepo() *ConsentRepo {
	return &ConsentRepo{consents: make(map[[2]string]time.Time)}
}

func (r *ConsentRepo) HasConsent(_ context.Context, apiKey, userID string) (bool, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	_, ok := r.consents[[2]string{apiKey, userID}]
	return ok, nil
}

func (r *ConsentRepo) RecordConsent(_ context.Context, apiKey, userID string, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.consents[[2]string{apiKey, userID}] = at
	return nil
}

// page returns list[offset:offset+limit], clamped. A non-positive limit means no limit.
func page[T any](list []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(list) {
		return nil
	}
	end := len(list)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return list[offset:end]
}
