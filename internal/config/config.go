// Package config handles loading and validating Cerberus configuration.
package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/fieldju/cerberus/internal/crypto"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Cerberus.
type Config struct {
	DataDir    string            `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // Persistent data directory. Default: ~/.cerberus/data. Override: CERBERUS_DATA_DIR env var.
	Storage    *StorageConfig    `json:"storage,omitempty" yaml:"storage,omitempty"`   // nil = SQLite default (derived from data dir)
	Encryption EncryptionConfig  `json:"encryption" yaml:"encryption"`
	Logging    *LoggingConfig    `json:"logging,omitempty" yaml:"logging,omitempty"` // nil = text at info level
	Pagination *PaginationConfig `json:"pagination,omitempty" yaml:"pagination,omitempty"`
}

// StorageConfig configures the persistence backend.
// When nil, defaults to SQLite with the database path derived from the data dir.
type StorageConfig struct {
	Driver   string                 `json:"driver" yaml:"driver"`                         // "sqlite" (default) or "postgres".
	SQLite   *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`     // SQLite-specific settings.
	Postgres *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"` // PostgreSQL-specific settings.
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: derived from data dir.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`                                 // Override: CERBERUS_DB_DSN env var.
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// ConnMaxLifetime returns the connection lifetime with a default of 30m.
func (p *PostgresStorageConfig) ConnMaxLifetime() time.Duration {
	if p != nil && p.ConnMaxLifetimeS > 0 {
		return time.Duration(p.ConnMaxLifetimeS) * time.Second
	}
	return 30 * time.Minute
}

// EncryptionConfig selects and configures the encryption backend used for
// secure data at rest.
type EncryptionConfig struct {
	Provider string             `json:"provider" yaml:"provider"`               // "local" (default) or "awskms".
	Local    *LocalCryptoConfig `json:"local,omitempty" yaml:"local,omitempty"` // Local AES-GCM settings.
	KMS      *KMSCryptoConfig   `json:"kms,omitempty" yaml:"kms,omitempty"`     // AWS KMS settings.
}

// ProviderName returns the configured provider, defaulting to "local".
func (e *EncryptionConfig) ProviderName() string {
	if e != nil && e.Provider != "" {
		return e.Provider
	}
	return "local"
}

// LocalCryptoConfig holds the key material for the local AES-GCM backend.
// Exactly one of Key or KeyFile should be set.
type LocalCryptoConfig struct {
	Key     string `json:"key,omitempty" yaml:"key,omitempty"`           // Base64-encoded 256-bit key. Override: CERBERUS_ENCRYPTION_KEY env var.
	KeyFile string `json:"key_file,omitempty" yaml:"key_file,omitempty"` // Path to a file holding the base64-encoded key.
}

// KeyBytes decodes the configured key material into raw bytes.
func (l *LocalCryptoConfig) KeyBytes() ([]byte, error) {
	if l == nil {
		return nil, fmt.Errorf("encryption.local is not configured")
	}
	encoded := l.Key
	if encoded == "" && l.KeyFile != "" {
		data, err := os.ReadFile(l.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading encryption key file %s: %w", l.KeyFile, err)
		}
		encoded = strings.TrimSpace(string(data))
	}
	if encoded == "" {
		return nil, fmt.Errorf("encryption.local.key is required (set CERBERUS_ENCRYPTION_KEY env var)")
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key: %w", err)
	}
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", crypto.KeySize, len(key))
	}
	return key, nil
}

// KMSCryptoConfig holds the AWS KMS settings.
type KMSCryptoConfig struct {
	KeyID  string `json:"key_id" yaml:"key_id"` // CMK id or alias ARN. Override: CERBERUS_KMS_KEY_ID env var.
	Region string `json:"region" yaml:"region"` // Override: AWS_REGION env var.
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // "debug", "info" (default), "warn", "error".
	Format string `json:"format" yaml:"format"` // "text" (default) or "json".
}

// LevelName returns the configured level, defaulting to "info".
func (l *LoggingConfig) LevelName() string {
	if l != nil && l.Level != "" {
		return l.Level
	}
	return "info"
}

// FormatName returns the configured format, defaulting to "text".
func (l *LoggingConfig) FormatName() string {
	if l != nil && l.Format != "" {
		return l.Format
	}
	return "text"
}

// PaginationConfig bounds metadata export page sizes.
type PaginationConfig struct {
	DefaultLimit int `json:"default_limit" yaml:"default_limit"` // Default: 100.
	MaxLimit     int `json:"max_limit" yaml:"max_limit"`         // Default: 1000.
}

// Limit returns the default page size with a default of 100.
func (p *PaginationConfig) Limit() int {
	if p != nil && p.DefaultLimit > 0 {
		return p.DefaultLimit
	}
	return 100
}

// Max returns the page size ceiling with a default of 1000.
func (p *PaginationConfig) Max() int {
	if p != nil && p.MaxLimit > 0 {
		return p.MaxLimit
	}
	return 1000
}

// DefaultConfigPath returns the default config file path (~/.cerberus/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/cerberus.yaml" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".cerberus", "config.yaml")
}

// Load reads a YAML or JSON config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Secrets such as the encryption key and the database DSN can
// be set in the config file or overridden by environment variables.
// Environment variables take precedence.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault behaves like Load but returns a usable default Config when
// no file exists at path. Useful for first-run CLI invocations.
func LoadOrDefault(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}
	if _, err := os.Stat(resolved); os.IsNotExist(err) {
		cfg := &Config{}
		cfg.applyEnvOverrides()
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

// applyEnvOverrides applies environment variable overrides. Env vars take
// precedence over config file values.
func (c *Config) applyEnvOverrides() {
	if envDD := os.Getenv("CERBERUS_DATA_DIR"); envDD != "" {
		c.DataDir = envDD
	}
	if envDSN := os.Getenv("CERBERUS_DB_DSN"); envDSN != "" {
		if c.Storage == nil {
			c.Storage = &StorageConfig{Driver: "postgres"}
		}
		if c.Storage.Postgres == nil {
			c.Storage.Postgres = &PostgresStorageConfig{}
		}
		c.Storage.Postgres.DSN = envDSN
	}
	if envKey := os.Getenv("CERBERUS_ENCRYPTION_KEY"); envKey != "" {
		if c.Encryption.Local == nil {
			c.Encryption.Local = &LocalCryptoConfig{}
		}
		c.Encryption.Local.Key = envKey
	}
	if envKeyID := os.Getenv("CERBERUS_KMS_KEY_ID"); envKeyID != "" {
		if c.Encryption.KMS == nil {
			c.Encryption.KMS = &KMSCryptoConfig{}
		}
		c.Encryption.KMS.KeyID = envKeyID
		if c.Encryption.Provider == "" {
			c.Encryption.Provider = "awskms"
		}
	}
	if envRegion := os.Getenv("AWS_REGION"); envRegion != "" && c.Encryption.KMS != nil {
		if c.Encryption.KMS.Region == "" {
			c.Encryption.KMS.Region = envRegion
		}
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		return filepath.Join(home, ".cerberus", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// DatabasePath returns the effective SQLite database path.
func (c *Config) DatabasePath() string {
	if c.Storage != nil && c.Storage.SQLite != nil && c.Storage.SQLite.Path != "" {
		return c.Storage.SQLite.Path
	}
	return filepath.Join(c.ResolvedDataDir(), "cerberus.db")
}

// StorageDriverName returns the effective storage driver name.
func (c *Config) StorageDriverName() string {
	if c.Storage != nil {
		return c.Storage.StorageDriver()
	}
	return "sqlite"
}

func (c *Config) validate() error {
	// Storage driver validation.
	if c.Storage != nil && c.Storage.Driver != "" {
		switch c.Storage.Driver {
		case "sqlite", "postgres":
			// valid
		default:
			return fmt.Errorf("storage.driver %q is not supported (use sqlite or postgres)", c.Storage.Driver)
		}
	}
	if c.StorageDriverName() == "postgres" {
		if c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required (set CERBERUS_DB_DSN env var)")
		}
	}

	// Encryption validation.
	switch c.Encryption.ProviderName() {
	case "local":
		if _, err := c.Encryption.Local.KeyBytes(); err != nil {
			return err
		}
	case "awskms":
		if c.Encryption.KMS == nil || c.Encryption.KMS.KeyID == "" {
			return fmt.Errorf("encryption.kms.key_id is required (set CERBERUS_KMS_KEY_ID env var)")
		}
	default:
		return fmt.Errorf("encryption.provider %q is not supported (use local or awskms)", c.Encryption.Provider)
	}

	if c.Logging != nil {
		switch c.Logging.LevelName() {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("logging.level %q is not supported (use debug, info, warn, or error)", c.Logging.Level)
		}
		switch c.Logging.FormatName() {
		case "text", "json":
		default:
			return fmt.Errorf("logging.format %q is not supported (use text or json)", c.Logging.Format)
		}
	}

	if c.Pagination != nil && c.Pagination.Limit() > c.Pagination.Max() {
		return fmt.Errorf("pagination.default_limit must not exceed pagination.max_limit")
	}
	return nil
}
