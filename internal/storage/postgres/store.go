package postgres

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/vaultum/keygate/internal/events"
	"github.com/vaultum/keygate/internal/storage"
)

// Store implements storage.Store backed by PostgreSQL.
// It wraps the existing DB and lazily creates sub-store repositories.
type Store struct {
	pgDB *DB

	mu           sync.Mutex
	authRequests storage.AuthRequestStore
	users        storage.UserStore
	eventStore   events.EventStore
}

// NewStore wraps an existing DB as a unified Store.
func NewStore(pgDB *DB) *Store {
	return &Store{pgDB: pgDB}
}

func (s *Store) Migrate(_ context.Context) error {
	// PostgreSQL migration is done in Open() via autoMigrate.
	return nil
}

func (s *Store) Close() error {
	return s.pgDB.Close()
}

func (s *Store) Driver() string {
	return storage.DriverPostgres
}

// GormDB returns the underlying DB for direct access when needed.
func (s *Store) GormDB() *DB {
	return s.pgDB
}

func (s *Store) EnsureOrg(ctx context.Context, name string) (uuid.UUID, error) {
	repo := NewOrgRepository(s.pgDB.GormDB())
	return repo.EnsureOrg(ctx, name)
}

// --- Sub-store accessors ---

func (s *Store) AuthRequests() storage.AuthRequestStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authRequests == nil {
		s.authRequests = NewAuthRequestRepository(s.pgDB.GormDB())
	}
	return s.authRequests
}

func (s *Store) Users() storage.UserStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = NewUserRepository(s.pgDB.GormDB())
	}
	return s.users
}

func (s *Store) Events() events.EventStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventStore == nil {
		s.eventStore = NewEventRepository(s.pgDB.GormDB())
	}
	return s.eventStore
}

// compile-time interface check
var _ storage.Store = (*Store)(nil)
