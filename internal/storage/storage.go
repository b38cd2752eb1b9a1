// Package storage defines the unified Store interface that abstracts all persistence operations.
// Two backends are provided: SQLite (default, zero-config) and PostgreSQL (production/multi-tenant).
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vaultum/keygate/internal/authrequest"
	"github.com/vaultum/keygate/internal/events"
	"github.com/vaultum/keygate/internal/orgauth"
)

// AuthRequestStore extends the admin-approval contract with the operations the
// API and the expiry sweeper need. The embedded orgauth.AuthRequestStore keeps
// the command layer decoupled from storage internals.
type AuthRequestStore interface {
	orgauth.AuthRequestStore

	// Create persists a new pending auth request.
	Create(ctx context.Context, req *authrequest.AuthRequest) error
	// Get retrieves one of the organization's auth requests by ID.
	Get(ctx context.Context, orgID, id uuid.UUID) (*authrequest.AuthRequest, error)
	// ListPending returns the organization's undecided requests, oldest first.
	ListPending(ctx context.Context, orgID uuid.UUID) ([]*authrequest.AuthRequest, error)
	// DeleteExpired removes undecided requests created before the cutoff and
	// returns the number of rows removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// UserStore extends user lookup with upsert for request intake.
type UserStore interface {
	orgauth.UserStore

	Upsert(ctx context.Context, orgID uuid.UUID, user *orgauth.User) error
}

// Store is the unified persistence interface for keygate.
// It provides access to all domain-specific sub-stores through accessor methods.
// Both SQLite and PostgreSQL backends implement this interface.
type Store interface {
	AuthRequests() AuthRequestStore
	Users() UserStore
	Events() events.EventStore

	// EnsureOrg creates an organization by name if it doesn't exist and
	// returns its ID.
	EnsureOrg(ctx context.Context, name string) (uuid.UUID, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error

	// Driver returns the storage driver name ("sqlite" or "postgres").
	Driver() string
}

// DriverSQLite is the SQLite driver name.
const DriverSQLite = "sqlite"

// DriverPostgres is the PostgreSQL driver name.
const DriverPostgres = "postgres"
