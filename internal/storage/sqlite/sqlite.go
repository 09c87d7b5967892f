// Package sqlite implements the unified Store interface using SQLite via
// GORM. Uses modernc.org/sqlite (pure Go, no CGO) through the
// glebarez/sqlite GORM driver, sharing the schema and repositories of the
// PostgreSQL backend. WAL mode is enabled by default for concurrent reads.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fieldju/cerberus/internal/metadata"
	"github.com/fieldju/cerberus/internal/secure"
	"github.com/fieldju/cerberus/internal/storage"
	pgstore "github.com/fieldju/cerberus/internal/storage/postgres"
)

// Config holds SQLite-specific configuration.
type Config struct {
	Path        string // Database file path, or ":memory:" for tests.
	JournalMode string // WAL mode by default.
}

// Store implements storage.Store backed by SQLite.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	path   string

	// Sub-store instances (created lazily on first access).
	mu         sync.Mutex
	secureData secure.Store
	versions   secure.VersionStore
	transactor secure.Transactor
	sdbs       metadata.SDBStore
	directory  metadata.Directory
}

// Open creates a new SQLite-backed Store.
func Open(cfg Config, slogger *slog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := cfg.Path
	if cfg.Path != ":memory:" {
		// Ensure parent directory exists.
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}

		journalMode := cfg.JournalMode
		if journalMode == "" {
			journalMode = "wal"
		}
		dsn = fmt.Sprintf("%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", cfg.Path, journalMode)
	}

	gormLogger := logger.New(
		slogAdapter{slogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: slogger,
		path:   cfg.Path,
	}

	slogger.Info("sqlite store opened", slog.String("path", cfg.Path))
	return s, nil
}

// Migrate runs GORM AutoMigrate and directory seeding.
// Uses the same models as the PostgreSQL backend.
func (s *Store) Migrate(_ context.Context) error {
	return pgstore.AutoMigrate(s.db)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Driver() string {
	return storage.DriverSQLite
}

// --- Sub-store accessors (shared repositories over the SQLite connection) ---

func (s *Store) SecureData() secure.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secureData == nil {
		s.secureData = pgstore.NewSecureDataRepository(s.db)
	}
	return s.secureData
}

func (s *Store) SecureDataVersions() secure.VersionStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions == nil {
		s.versions = pgstore.NewSecureDataVersionRepository(s.db)
	}
	return s.versions
}

func (s *Store) Transactor() secure.Transactor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transactor == nil {
		s.transactor = pgstore.NewTransactor(s.db)
	}
	return s.transactor
}

func (s *Store) SafeDepositBoxes() metadata.SDBStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sdbs == nil {
		s.sdbs = pgstore.NewSafeDepositBoxRepository(s.db, s.logger)
	}
	return s.sdbs
}

func (s *Store) Directory() metadata.Directory {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.directory == nil {
		s.directory = pgstore.NewDirectoryRepository(s.db)
	}
	return s.directory
}

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Printf(format string, args ...any) {
	a.logger.Info(fmt.Sprintf(format, args...))
}

// compile-time interface check
var _ storage.Store = (*Store)(nil)
