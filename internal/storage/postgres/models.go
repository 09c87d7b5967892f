package postgres

import (
	"time"

	"github.com/google/uuid"
)

// CategoryModel maps to the "categories" table.
type CategoryModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null;uniqueIndex"`
	Path      string    `gorm:"not null;uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CategoryModel) TableName() string { return "categories" }

// RoleModel maps to the "roles" table.
type RoleModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null;uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (RoleModel) TableName() string { return "roles" }

// SafeDepositBoxModel maps to the "safe_deposit_boxes" table.
// Audit columns are plain fields, not GORM-managed timestamps: restore
// writes them explicitly from backed-up metadata.
type SafeDepositBoxModel struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey"`
	CategoryID           uuid.UUID `gorm:"type:uuid;not null;index"`
	Name                 string    `gorm:"not null;uniqueIndex"`
	Description          string
	Path                 string `gorm:"not null;uniqueIndex"`
	Owner                string
	CreatedBy            string
	CreatedAt            time.Time `gorm:"autoCreateTime:false;index"`
	LastUpdatedBy        string
	LastUpdatedAt        time.Time
	UserGroupPermissions []UserGroupPermissionModel `gorm:"foreignKey:SDBID;constraint:OnDelete:CASCADE"`
	IamRolePermissions   []IamRolePermissionModel   `gorm:"foreignKey:SDBID;constraint:OnDelete:CASCADE"`
}

func (SafeDepositBoxModel) TableName() string { return "safe_deposit_boxes" }

// UserGroupPermissionModel maps to the "user_group_permissions" table.
type UserGroupPermissionModel struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	SDBID  uuid.UUID `gorm:"column:sdb_id;type:uuid;not null;index"`
	Name   string    `gorm:"not null"`
	RoleID uuid.UUID `gorm:"type:uuid;not null"`
}

func (UserGroupPermissionModel) TableName() string { return "user_group_permissions" }

// IamRolePermissionModel maps to the "iam_role_permissions" table.
type IamRolePermissionModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	SDBID       uuid.UUID `gorm:"column:sdb_id;type:uuid;not null;index"`
	AccountID   string    `gorm:"not null"`
	IamRoleName string    `gorm:"not null"`
	RoleID      uuid.UUID `gorm:"type:uuid;not null"`
}

func (IamRolePermissionModel) TableName() string { return "iam_role_permissions" }

// SecureDataModel maps to the "secure_data" table. The path is the primary
// key: exactly one live record per path.
type SecureDataModel struct {
	Path             string    `gorm:"primaryKey"`
	SDBID            uuid.UUID `gorm:"column:sdb_id;type:uuid;not null;index"`
	EncryptedBlob    []byte    `gorm:"not null"`
	Type             string    `gorm:"not null;default:'OBJECT'"`
	SizeInBytes      int       `gorm:"not null"`
	TopLevelKeyCount int       `gorm:"not null;default:1"`
	CreatedBy        string
	CreatedAt        time.Time `gorm:"autoCreateTime:false"`
	LastUpdatedBy    string
	LastUpdatedAt    time.Time
}

func (SecureDataModel) TableName() string { return "secure_data" }

// SecureDataVersionModel maps to the "secure_data_versions" table.
// No UpdatedAt or DeletedAt: the version ledger is append-only and immutable.
type SecureDataVersionModel struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	SDBID             uuid.UUID `gorm:"column:sdb_id;type:uuid;not null;index"`
	Path              string    `gorm:"not null;index"`
	EncryptedBlob     []byte    `gorm:"not null"`
	Action            string    `gorm:"not null"`
	Type              string    `gorm:"not null"`
	SizeInBytes       int       `gorm:"not null"`
	PreviousUpdatedBy string
	PreviousUpdatedAt time.Time
	ActionPerformedBy string
	ActionPerformedAt time.Time `gorm:"index"`
}

func (SecureDataVersionModel) TableName() string { return "secure_data_versions" }
