package postgres

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fieldju/cerberus/internal/metadata"
	"github.com/fieldju/cerberus/internal/secure"
	"github.com/fieldju/cerberus/internal/storage"
)

// Store implements storage.Store backed by PostgreSQL.
// It wraps the existing DB and lazily creates sub-store repositories.
type Store struct {
	pgDB   *DB
	logger *slog.Logger

	mu         sync.Mutex
	secureData secure.Store
	versions   secure.VersionStore
	transactor secure.Transactor
	sdbs       metadata.SDBStore
	directory  metadata.Directory
}

// NewStore wraps an existing DB as a unified Store.
func NewStore(pgDB *DB, logger *slog.Logger) *Store {
	return &Store{pgDB: pgDB, logger: logger}
}

func (s *Store) Migrate(_ context.Context) error {
	// PostgreSQL migration is done in Open() via AutoMigrate.
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

// --- Sub-store accessors ---

func (s *Store) SecureData() secure.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secureData == nil {
		s.secureData = NewSecureDataRepository(s.pgDB.GormDB())
	}
	return s.secureData
}

func (s *Store) SecureDataVersions() secure.VersionStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions == nil {
		s.versions = NewSecureDataVersionRepository(s.pgDB.GormDB())
	}
	return s.versions
}

func (s *Store) Transactor() secure.Transactor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transactor == nil {
		s.transactor = NewTransactor(s.pgDB.GormDB())
	}
	return s.transactor
}

func (s *Store) SafeDepositBoxes() metadata.SDBStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sdbs == nil {
		s.sdbs = NewSafeDepositBoxRepository(s.pgDB.GormDB(), s.logger)
	}
	return s.sdbs
}

func (s *Store) Directory() metadata.Directory {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.directory == nil {
		s.directory = NewDirectoryRepository(s.pgDB.GormDB())
	}
	return s.directory
}

// compile-time interface check
var _ storage.Store = (*Store)(nil)
