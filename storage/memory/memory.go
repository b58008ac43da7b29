// Package memory keeps every repository in process maps guarded by mutexes. It backs tests and the
// memory store driver; state is lost on restart.
package memory

import "github.com/jrsteele09/lms-oauth-gateway/storage"

type Store struct {
	Clients     *ClientRepo
	Consents    *ConsentRepo
	Permissions *PermissionRepo
	Users       *UserRepo
	Sessions    *SessionRepo
	Codes       *CodeRepo
	Refresh     *RefreshRepo
	Exchange    *ExchangeRepo
	Revoked     *RevocationRepo
}

var _ storage.Backend = (*Store)(nil)

func New() *Store {
	return &Store{
		Clients:     NewClientRepo(),
		Consents:    NewConsentRepo(),
		Permissions: NewPermissionRepo(),
		Users:       NewUserRepo(),
		Sessions:    NewSessionRepo(),
		Codes:       NewCodeRepo(),
		Refresh:     NewRefreshRepo(),
		Exchange:    NewExchangeRepo(),
		Revoked:     NewRevocationRepo(),
	}
}

func (s *Store) Repos() storage.Repos {
	r := storage.Repos{
		Clients:     s.Clients,
		Consents:    s.Consents,
		Permissions: s.Permissions,
		Users:       s.Users,
		Sessions:    s.Sessions,
	}
	r.Tokens.Codes = s.Codes
	r.Tokens.Refresh = s.Refresh
	r.Tokens.Exchange = s.Exchange
	r.Tokens.Revoked = s.Revoked
	return r
}

func (s *Store) Close() error {
	return nil
}
