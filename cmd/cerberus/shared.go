package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fieldju/cerberus/internal/config"
	"github.com/fieldju/cerberus/internal/crypto"
	"github.com/fieldju/cerberus/internal/crypto/awskms"
	"github.com/fieldju/cerberus/internal/metadata"
	"github.com/fieldju/cerberus/internal/secure"
	"github.com/fieldju/cerberus/internal/storage"
	pgstore "github.com/fieldju/cerberus/internal/storage/postgres"
	sqlitestore "github.com/fieldju/cerberus/internal/storage/sqlite"
)

// SharedComponents holds the initialized subsystems every command requires.
// Built once by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    storage.Store
	Registry *prometheus.Registry

	Secure   *secure.Engine
	Metadata *metadata.Engine

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// initShared performs the common initialization shared by all commands.
// Callers must call sc.Cleanup() when done.
func initShared() (*SharedComponents, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Logging)
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	store, err := initStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	sc.Store = store
	sc.addCleanup(func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
	})

	if err := store.Migrate(context.Background()); err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Debug("storage initialized", slog.String("driver", store.Driver()))

	gateway, err := initGateway(cfg)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing encryption: %w", err)
	}
	logger.Debug("encryption initialized", slog.String("provider", cfg.Encryption.ProviderName()))

	registry := prometheus.NewRegistry()
	sc.Registry = registry

	sc.Secure = secure.NewEngine(
		store.Transactor(),
		store.SecureData(),
		gateway,
		logger,
		secure.NewMetrics(registry),
	)
	sc.Metadata = metadata.NewEngine(
		store.SafeDepositBoxes(),
		store.Directory(),
		sc.Secure,
		logger,
	)

	return sc, nil
}

// newLogger builds the slog logger from config, defaulting to text at info.
func newLogger(cfg *config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.LevelName() {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.FormatName() == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// initStore creates the appropriate storage backend from config.
func initStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch driver := cfg.StorageDriverName(); driver {
	case storage.DriverPostgres:
		return initPostgresStore(cfg, logger)
	case storage.DriverSQLite:
		return initSQLiteStore(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", driver)
	}
}

func initSQLiteStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	dbPath := cfg.DatabasePath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	journalMode := "wal"
	if cfg.Storage != nil && cfg.Storage.SQLite != nil && cfg.Storage.SQLite.JournalMode != "" {
		journalMode = cfg.Storage.SQLite.JournalMode
	}

	return sqlitestore.Open(sqlitestore.Config{
		Path:        dbPath,
		JournalMode: journalMode,
	}, logger)
}

func initPostgresStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	pg := cfg.Storage.Postgres
	pgDB, err := pgstore.Open(pgstore.Config{
		DSN:             pg.DSN,
		MaxOpenConns:    pg.MaxOpenConns,
		MaxIdleConns:    pg.MaxIdleConns,
		ConnMaxLifetime: pg.ConnMaxLifetime(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	return pgstore.NewStore(pgDB, logger), nil
}

// initGateway creates the encryption backend from config.
func initGateway(cfg *config.Config) (crypto.Gateway, error) {
	switch provider := cfg.Encryption.ProviderName(); provider {
	case "local":
		key, err := cfg.Encryption.Local.KeyBytes()
		if err != nil {
			return nil, err
		}
		return crypto.NewLocalGateway(key)
	case "awskms":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return awskms.New(ctx, awskms.Config{
			KeyID:  cfg.Encryption.KMS.KeyID,
			Region: cfg.Encryption.KMS.Region,
		})
	default:
		return nil, fmt.Errorf("unknown encryption provider: %q", provider)
	}
}
