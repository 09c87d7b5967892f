package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/fieldju/cerberus/internal/secure"
)

// Transactor implements secure.Transactor over a GORM connection. The
// callback runs against repositories bound to one database transaction;
// any error rolls the whole sequence back.
type Transactor struct {
	db *gorm.DB
}

// NewTransactor creates a Transactor.
func NewTransactor(db *gorm.DB) *Transactor {
	return &Transactor{db: db}
}

// InTransaction runs fn against transaction-scoped live and version stores.
func (t *Transactor) InTransaction(ctx context.Context, fn func(secure.Store, secure.VersionStore) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewSecureDataRepository(tx), NewSecureDataVersionRepository(tx))
	})
}

// compile-time interface check
var _ secure.Transactor = (*Transactor)(nil)
