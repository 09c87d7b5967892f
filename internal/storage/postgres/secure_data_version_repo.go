package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldju/cerberus/internal/domain"
	"github.com/fieldju/cerberus/internal/secure"
)

// SecureDataVersionRepository implements secure.VersionStore with GORM.
// Append-only: no Update or Delete methods exist on this type.
type SecureDataVersionRepository struct {
	db *gorm.DB
}

// NewSecureDataVersionRepository creates a SecureDataVersionRepository.
func NewSecureDataVersionRepository(db *gorm.DB) *SecureDataVersionRepository {
	return &SecureDataVersionRepository{db: db}
}

// Append inserts a single version record. This is the only write method;
// immutability is enforced at the interface level.
func (r *SecureDataVersionRepository) Append(ctx context.Context, v *domain.SecureDataVersion) error {
	m := toSecureDataVersionModel(uuid.New(), v)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("appending secure data version for %s: %w", v.Path, err)
	}
	return nil
}

// VersionsByPath returns the archived versions for a path, newest action
// first. Used by audit tooling.
func (r *SecureDataVersionRepository) VersionsByPath(ctx context.Context, path string, limit int) ([]domain.SecureDataVersion, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []SecureDataVersionModel
	err := r.db.WithContext(ctx).
		Where("path = ?", path).
		Order("action_performed_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("querying secure data versions for %s: %w", path, err)
	}
	versions := make([]domain.SecureDataVersion, len(models))
	for i := range models {
		versions[i] = *toSecureDataVersionDomain(&models[i])
	}
	return versions, nil
}

// compile-time interface check
var _ secure.VersionStore = (*SecureDataVersionRepository)(nil)
