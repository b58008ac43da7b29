// Package storage groups the repositories a backend provides. The backends live in the memory,
// sqlite, bolt and redis sub-packages.
package storage

import (
	"io"

	"github.com/jrsteele09/lms-oauth-gateway/clients"
	"github.com/jrsteele09/lms-oauth-gateway/permissions"
	"github.com/jrsteele09/lms-oauth-gateway/sessions"
	"github.com/jrsteele09/lms-oauth-gateway/token"
	"github.com/jrsteele09/lms-oauth-gateway/users"
)

// Driver names accepted by STORE_DRIVER.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

// Repos is the full set of repositories one backend provides.
type Repos struct {
	Clients     clients.Repo
	Consents    clients.ConsentRepo
	Permissions permissions.Repo
	Users       users.Repo
	Sessions    sessions.Repo
	Tokens      token.Repos
}

// Backend is an opened store.
type Backend interface {
	io.Closer
	Repos() Repos
}
