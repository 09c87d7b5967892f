package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldju/cerberus/internal/domain"
	"github.com/fieldju/cerberus/internal/secure"
)

// likeEscaper neutralizes LIKE metacharacters so a path prefix always matches
// literally. `_` is legal in secret paths and would otherwise match any
// single character.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePrefixPattern builds the LIKE pattern for a literal prefix match. Use
// with an `ESCAPE '\'` clause.
func likePrefixPattern(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}

// SecureDataRepository implements secure.Store with GORM.
type SecureDataRepository struct {
	db *gorm.DB
}

// NewSecureDataRepository creates a SecureDataRepository.
func NewSecureDataRepository(db *gorm.DB) *SecureDataRepository {
	return &SecureDataRepository{db: db}
}

// GetByPath returns the live record at path, or (nil, nil) when absent.
func (r *SecureDataRepository) GetByPath(ctx context.Context, path string) (*domain.SecureDataRecord, error) {
	var m SecureDataModel
	err := r.db.WithContext(ctx).Where("path = ?", path).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secure data at %s: %w", path, err)
	}
	return toSecureDataDomain(&m), nil
}

// GetByPathAndType returns the live record at path with the given type, or
// (nil, nil) when absent.
func (r *SecureDataRepository) GetByPathAndType(ctx context.Context, path string, t domain.SecureDataType) (*domain.SecureDataRecord, error) {
	var m SecureDataModel
	err := r.db.WithContext(ctx).Where("path = ? AND type = ?", path, string(t)).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secure data at %s: %w", path, err)
	}
	return toSecureDataDomain(&m), nil
}

// Insert creates the live record for a path written for the first time.
func (r *SecureDataRepository) Insert(ctx context.Context, rec *domain.SecureDataRecord) error {
	m := toSecureDataModel(rec)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("inserting secure data at %s: %w", rec.Path, err)
	}
	return nil
}

// Update overwrites every column of the live record at rec.Path.
func (r *SecureDataRepository) Update(ctx context.Context, rec *domain.SecureDataRecord) error {
	m := toSecureDataModel(rec)
	res := r.db.WithContext(ctx).Model(&SecureDataModel{}).Where("path = ?", rec.Path).
		Select("*").Omit("path").Updates(&m)
	if res.Error != nil {
		return fmt.Errorf("updating secure data at %s: %w", rec.Path, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("updating secure data at %s: no live record", rec.Path)
	}
	return nil
}

// Delete removes the live record at path. The version ledger is untouched.
func (r *SecureDataRepository) Delete(ctx context.Context, path string) error {
	if err := r.db.WithContext(ctx).Where("path = ?", path).Delete(&SecureDataModel{}).Error; err != nil {
		return fmt.Errorf("deleting secure data at %s: %w", path, err)
	}
	return nil
}

// PathsByPrefixAndType returns all live paths of the given type starting
// with prefix, sorted.
func (r *SecureDataRepository) PathsByPrefixAndType(ctx context.Context, prefix string, t domain.SecureDataType) ([]string, error) {
	var paths []string
	err := r.db.WithContext(ctx).Model(&SecureDataModel{}).
		Where(`path LIKE ? ESCAPE '\' AND type = ?`, likePrefixPattern(prefix), string(t)).
		Order("path").
		Pluck("path", &paths).Error
	if err != nil {
		return nil, fmt.Errorf("listing paths under %s: %w", prefix, err)
	}
	return paths, nil
}

// PathsBySDBID returns all live paths owned by the given safe deposit box.
func (r *SecureDataRepository) PathsBySDBID(ctx context.Context, sdbID uuid.UUID) ([]string, error) {
	var paths []string
	err := r.db.WithContext(ctx).Model(&SecureDataModel{}).
		Where("sdb_id = ?", sdbID).
		Order("path").
		Pluck("path", &paths).Error
	if err != nil {
		return nil, fmt.Errorf("listing paths for sdb %s: %w", sdbID, err)
	}
	return paths, nil
}

// CountAll returns the number of live records.
func (r *SecureDataRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&SecureDataModel{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting secure data nodes: %w", err)
	}
	return count, nil
}

// SumTopLevelKeyCounts sums the top-level key metric across all live records.
func (r *SecureDataRepository) SumTopLevelKeyCounts(ctx context.Context) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).Model(&SecureDataModel{}).
		Select("COALESCE(SUM(top_level_key_count), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, fmt.Errorf("summing top level key counts: %w", err)
	}
	return sum, nil
}

// DeleteByPathPrefix bulk-removes every live record whose path starts with
// prefix, as a single statement. No version records are written.
func (r *SecureDataRepository) DeleteByPathPrefix(ctx context.Context, prefix string) error {
	err := r.db.WithContext(ctx).Where(`path LIKE ? ESCAPE '\'`, likePrefixPattern(prefix)).Delete(&SecureDataModel{}).Error
	if err != nil {
		return fmt.Errorf("bulk deleting secure data under %s: %w", prefix, err)
	}
	return nil
}

// compile-time interface check
var _ secure.Store = (*SecureDataRepository)(nil)
