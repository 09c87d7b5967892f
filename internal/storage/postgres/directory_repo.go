package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldju/cerberus/internal/domain"
	"github.com/fieldju/cerberus/internal/metadata"
)

// Standard directory entries ensured at migrate time so metadata restores
// can resolve the stock role and category names.
var (
	defaultRoles = []string{"owner", "write", "read"}

	defaultCategories = []domain.Category{
		{Name: "Applications", Path: "app"},
		{Name: "Shared", Path: "shared"},
	}
)

// DirectoryRepository implements metadata.Directory with GORM.
type DirectoryRepository struct {
	db *gorm.DB
}

// NewDirectoryRepository creates a DirectoryRepository.
func NewDirectoryRepository(db *gorm.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// CategoryIDByName resolves a category name to its id.
func (r *DirectoryRepository) CategoryIDByName(ctx context.Context, name string) (uuid.UUID, bool, error) {
	var m CategoryModel
	err := r.db.WithContext(ctx).Select("id").Where("name = ?", name).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("resolving category %q: %w", name, err)
	}
	return m.ID, true, nil
}

// RoleByName resolves a role name, returning (nil, nil) when absent.
func (r *DirectoryRepository) RoleByName(ctx context.Context, name string) (*domain.Role, error) {
	var m RoleModel
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving role %q: %w", name, err)
	}
	return &domain.Role{ID: m.ID, Name: m.Name}, nil
}

// CategoryIDToNameMap returns the full category id to name mapping.
func (r *DirectoryRepository) CategoryIDToNameMap(ctx context.Context) (map[uuid.UUID]string, error) {
	var models []CategoryModel
	if err := r.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("loading categories: %w", err)
	}
	out := make(map[uuid.UUID]string, len(models))
	for _, m := range models {
		out[m.ID] = m.Name
	}
	return out, nil
}

// RoleIDToNameMap returns the full role id to name mapping.
func (r *DirectoryRepository) RoleIDToNameMap(ctx context.Context) (map[uuid.UUID]string, error) {
	var models []RoleModel
	if err := r.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("loading roles: %w", err)
	}
	out := make(map[uuid.UUID]string, len(models))
	for _, m := range models {
		out[m.ID] = m.Name
	}
	return out, nil
}

// EnsureDefaults creates the standard roles and categories if missing.
func (r *DirectoryRepository) EnsureDefaults(ctx context.Context) error {
	for _, name := range defaultRoles {
		var m RoleModel
		err := r.db.WithContext(ctx).Where("name = ?", name).First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			m = RoleModel{ID: uuid.New(), Name: name}
			if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
				return fmt.Errorf("seeding role %q: %w", name, err)
			}
		} else if err != nil {
			return fmt.Errorf("checking role %q: %w", name, err)
		}
	}

	for _, c := range defaultCategories {
		var m CategoryModel
		err := r.db.WithContext(ctx).Where("name = ?", c.Name).First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			m = CategoryModel{ID: uuid.New(), Name: c.Name, Path: c.Path}
			if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
				return fmt.Errorf("seeding category %q: %w", c.Name, err)
			}
		} else if err != nil {
			return fmt.Errorf("checking category %q: %w", c.Name, err)
		}
	}

	return nil
}

// compile-time interface check
var _ metadata.Directory = (*DirectoryRepository)(nil)
