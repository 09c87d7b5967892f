package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString(make([]byte, 32))
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
data_dir: /var/lib/cerberus
storage:
  driver: postgres
  postgres:
    dsn: postgres://localhost/cerberus
    max_open_conns: 10
encryption:
  provider: local
  local:
    key: `+testKey()+`
logging:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if cfg.StorageDriverName() != "postgres" {
		t.Errorf("driver = %q, want postgres", cfg.StorageDriverName())
	}
	if cfg.Storage.Postgres.MaxOpenConns != 10 {
		t.Errorf("max_open_conns = %d, want 10", cfg.Storage.Postgres.MaxOpenConns)
	}
	if cfg.Logging.LevelName() != "debug" || cfg.Logging.FormatName() != "json" {
		t.Errorf("logging = %q/%q, want debug/json", cfg.Logging.LevelName(), cfg.Logging.FormatName())
	}
	key, err := cfg.Encryption.Local.KeyBytes()
	if err != nil {
		t.Fatalf("key bytes: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("key length = %d, want 32", len(key))
	}
}

func TestLoad_JSON(t *testing.T) {
	path := writeConfig(t, "config.json",
		`{"encryption": {"provider": "awskms", "kms": {"key_id": "alias/cerberus", "region": "us-west-2"}}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if cfg.Encryption.ProviderName() != "awskms" {
		t.Errorf("provider = %q, want awskms", cfg.Encryption.ProviderName())
	}
	if cfg.Encryption.KMS.KeyID != "alias/cerberus" {
		t.Errorf("key_id = %q", cfg.Encryption.KMS.KeyID)
	}
	// SQLite is the default driver when storage is omitted.
	if cfg.StorageDriverName() != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.StorageDriverName())
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
encryption:
  local:
    key: `+testKey()+`
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if cfg.Encryption.ProviderName() != "local" {
		t.Errorf("provider = %q, want local", cfg.Encryption.ProviderName())
	}
	if got := cfg.Pagination.Limit(); got != 100 {
		t.Errorf("default limit = %d, want 100", got)
	}
	if got := cfg.Pagination.Max(); got != 1000 {
		t.Errorf("max limit = %d, want 1000", got)
	}
	if got := cfg.Storage.StorageDriver(); got != "sqlite" {
		t.Errorf("driver = %q, want sqlite", got)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CERBERUS_ENCRYPTION_KEY", testKey())
	t.Setenv("CERBERUS_DB_DSN", "postgres://env-host/cerberus")
	t.Setenv("CERBERUS_DATA_DIR", "/tmp/cerberus-env")

	path := writeConfig(t, "config.yaml", `
data_dir: /var/lib/cerberus
storage:
  driver: postgres
  postgres:
    dsn: postgres://file-host/cerberus
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if cfg.Storage.Postgres.DSN != "postgres://env-host/cerberus" {
		t.Errorf("dsn = %q, env var must win", cfg.Storage.Postgres.DSN)
	}
	if cfg.DataDir != "/tmp/cerberus-env" {
		t.Errorf("data_dir = %q, env var must win", cfg.DataDir)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad driver", `
storage:
  driver: mysql
encryption:
  local:
    key: ` + testKey()},
		{"postgres without dsn", `
storage:
  driver: postgres
encryption:
  local:
    key: ` + testKey()},
		{"missing local key", `
encryption:
  provider: local`},
		{"short key", `
encryption:
  local:
    key: ` + base64.StdEncoding.EncodeToString(make([]byte, 16))},
		{"kms without key id", `
encryption:
  provider: awskms`},
		{"bad log level", `
logging:
  level: verbose
encryption:
  local:
    key: ` + testKey()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, "config.yaml", tc.content)
			if _, err := Load(path); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestPostgresConnMaxLifetime(t *testing.T) {
	var p *PostgresStorageConfig
	if got := p.ConnMaxLifetime(); got != 30*time.Minute {
		t.Errorf("nil config lifetime = %v, want 30m", got)
	}
	p = &PostgresStorageConfig{ConnMaxLifetimeS: 60}
	if got := p.ConnMaxLifetime(); got != time.Minute {
		t.Errorf("lifetime = %v, want 1m", got)
	}
}

func TestKeyBytes_FromFile(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(keyPath, []byte(testKey()+"\n"), 0o600); err != nil {
		t.Fatalf("writing key file: %v", err)
	}
	l := &LocalCryptoConfig{KeyFile: keyPath}
	key, err := l.KeyBytes()
	if err != nil {
		t.Fatalf("key bytes: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("key length = %d, want 32", len(key))
	}
}
