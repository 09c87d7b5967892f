// Package storage defines the unified Store interface that abstracts all
// persistence for the secrets core. Two backends are provided: SQLite
// (default, zero-config) and PostgreSQL (production).
package storage

import (
	"context"

	"github.com/fieldju/cerberus/internal/metadata"
	"github.com/fieldju/cerberus/internal/secure"
)

// Driver names accepted by config.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is the unified persistence interface. It provides access to the
// domain-specific sub-stores through accessor methods; all sub-stores share
// one underlying connection pool, and the Transactor scopes multi-store
// sequences to a single transaction.
type Store interface {
	SecureData() secure.Store
	SecureDataVersions() secure.VersionStore
	Transactor() secure.Transactor

	SafeDepositBoxes() metadata.SDBStore
	Directory() metadata.Directory

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
	Driver() string
}
