package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fieldju/cerberus/internal/domain"
	"github.com/fieldju/cerberus/internal/metadata"
)

// SafeDepositBoxRepository implements metadata.SDBStore with GORM.
type SafeDepositBoxRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewSafeDepositBoxRepository creates a SafeDepositBoxRepository.
func NewSafeDepositBoxRepository(db *gorm.DB, logger *slog.Logger) *SafeDepositBoxRepository {
	return &SafeDepositBoxRepository{db: db, logger: logger}
}

// IDByName returns the id of the box with the given name, if one exists.
func (r *SafeDepositBoxRepository) IDByName(ctx context.Context, name string) (uuid.UUID, bool, error) {
	var m SafeDepositBoxModel
	err := r.db.WithContext(ctx).Select("id").Where("name = ?", name).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("looking up safe deposit box %q: %w", name, err)
	}
	return m.ID, true, nil
}

// ListPage returns one page of boxes ordered by creation time, with their
// permission grants preloaded, plus the total box count.
func (r *SafeDepositBoxRepository) ListPage(ctx context.Context, limit, offset int) ([]domain.SafeDepositBox, int, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&SafeDepositBoxModel{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting safe deposit boxes: %w", err)
	}

	var models []SafeDepositBoxModel
	err := r.db.WithContext(ctx).
		Preload("UserGroupPermissions").
		Preload("IamRolePermissions").
		Order("created_at").
		Limit(limit).
		Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, 0, fmt.Errorf("listing safe deposit boxes: %w", err)
	}

	boxes := make([]domain.SafeDepositBox, len(models))
	for i := range models {
		boxes[i] = *toSafeDepositBoxDomain(&models[i])
	}
	return boxes, int(total), nil
}

// Restore force-writes the full box row and replaces its permission grants,
// persisting the audit fields exactly as given. Runs in one transaction so
// a failed restore leaves the previous state intact.
func (r *SafeDepositBoxRepository) Restore(ctx context.Context, sdb *domain.SafeDepositBox, actor string) error {
	r.logger.Info("restoring safe deposit box",
		slog.String("name", sdb.Name),
		slog.String("id", sdb.ID.String()),
		slog.String("actor", actor),
	)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := toSafeDepositBoxModel(sdb)
		if err := tx.Omit(clause.Associations).Save(&m).Error; err != nil {
			return fmt.Errorf("saving safe deposit box %q: %w", sdb.Name, err)
		}

		// Replace grants: delete old, insert new.
		if err := tx.Where("sdb_id = ?", sdb.ID).Delete(&UserGroupPermissionModel{}).Error; err != nil {
			return fmt.Errorf("clearing user group permissions for %q: %w", sdb.Name, err)
		}
		if err := tx.Where("sdb_id = ?", sdb.ID).Delete(&IamRolePermissionModel{}).Error; err != nil {
			return fmt.Errorf("clearing IAM role permissions for %q: %w", sdb.Name, err)
		}

		for _, p := range sdb.UserGroupPermissions {
			pm := UserGroupPermissionModel{
				ID:     uuid.New(),
				SDBID:  sdb.ID,
				Name:   p.Name,
				RoleID: p.RoleID,
			}
			if err := tx.Create(&pm).Error; err != nil {
				return fmt.Errorf("creating user group permission %q: %w", p.Name, err)
			}
		}
		for _, p := range sdb.IamRolePermissions {
			pm := IamRolePermissionModel{
				ID:          uuid.New(),
				SDBID:       sdb.ID,
				AccountID:   p.AccountID,
				IamRoleName: p.IamRoleName,
				RoleID:      p.RoleID,
			}
			if err := tx.Create(&pm).Error; err != nil {
				return fmt.Errorf("creating IAM role permission %q: %w", p.IamRoleName, err)
			}
		}

		return nil
	})
}

// compile-time interface check
var _ metadata.SDBStore = (*SafeDepositBoxRepository)(nil)
