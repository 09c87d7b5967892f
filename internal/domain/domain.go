// Package domain defines cross-cutting entity types used across the system.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SecureDataType discriminates the payload shape stored at a path.
type SecureDataType string

const (
	// SecureDataTypeObject is a JSON-object payload (key/value secrets).
	SecureDataTypeObject SecureDataType = "OBJECT"
	// SecureDataTypeFile is an opaque binary payload.
	SecureDataTypeFile SecureDataType = "FILE"
)

// SecretsAction tags a version record with the mutation that produced it.
type SecretsAction string

const (
	SecretsActionUpdate SecretsAction = "UPDATE"
	SecretsActionDelete SecretsAction = "DELETE"
)

// SecureDataRecord is the live row for a single logical path.
// Exactly one live record exists per path; the path is the primary key.
type SecureDataRecord struct {
	Path             string
	SDBID            uuid.UUID // Owning safe deposit box. A lookup key, not an ownership pointer.
	EncryptedBlob    []byte
	Type             SecureDataType
	SizeInBytes      int // UTF-8 byte length of the plaintext, computed pre-encryption.
	TopLevelKeyCount int // Best-effort KPI metric, defaults to 1 on unparsable payloads.
	CreatedBy        string
	CreatedAt        time.Time
	LastUpdatedBy    string
	LastUpdatedAt    time.Time
}

// SecureDataVersion is an append-only snapshot of the pre-mutation state of a
// SecureDataRecord, written on every update or delete. Versions are never
// mutated or removed; they are the durable audit trail.
type SecureDataVersion struct {
	SDBID             uuid.UUID
	Path              string
	EncryptedBlob     []byte
	Action            SecretsAction
	Type              SecureDataType
	SizeInBytes       int
	PreviousUpdatedBy string
	PreviousUpdatedAt time.Time
	ActionPerformedBy string
	ActionPerformedAt time.Time
}

// SecureData is a decrypted secret returned to callers: plaintext plus the
// audit fields of the live record.
type SecureData struct {
	SDBID         uuid.UUID
	Path          string
	Data          string
	CreatedBy     string
	CreatedAt     time.Time
	LastUpdatedBy string
	LastUpdatedAt time.Time
}

// Role is a named access level (owner, write, read) grantable on a safe
// deposit box.
type Role struct {
	ID   uuid.UUID
	Name string
}

// Category is the top-level namespace a safe deposit box lives under.
type Category struct {
	ID   uuid.UUID
	Name string
	Path string
}

// UserGroupPermission grants a role to a user group on a safe deposit box.
type UserGroupPermission struct {
	Name   string // Group name.
	RoleID uuid.UUID
}

// IamRolePermission grants a role to an AWS IAM role on a safe deposit box.
type IamRolePermission struct {
	AccountID   string
	IamRoleName string
	RoleID      uuid.UUID
}

// SafeDepositBox is the tenant container for secrets under one path prefix.
type SafeDepositBox struct {
	ID                   uuid.UUID
	CategoryID           uuid.UUID
	Name                 string
	Description          string
	Path                 string
	Owner                string
	CreatedBy            string
	CreatedAt            time.Time
	LastUpdatedBy        string
	LastUpdatedAt        time.Time
	UserGroupPermissions []UserGroupPermission
	IamRolePermissions   []IamRolePermission
}

// SDBMetadata is the name-bearing transfer projection of a safe deposit box.
// It carries only human-readable names, never internal ids, because ids are
// environment-specific and must be re-resolved against the target directory
// on restore. Permission maps are groupName→roleName and iamRoleArn→roleName.
type SDBMetadata struct {
	Name                 string            `json:"name" yaml:"name"`
	Path                 string            `json:"path" yaml:"path"`
	Category             string            `json:"category" yaml:"category"`
	Owner                string            `json:"owner" yaml:"owner"`
	Description          string            `json:"description" yaml:"description"`
	CreatedBy            string            `json:"created_by" yaml:"created_by"`
	CreatedAt            time.Time         `json:"created_ts" yaml:"created_ts"`
	LastUpdatedBy        string            `json:"last_updated_by" yaml:"last_updated_by"`
	LastUpdatedAt        time.Time         `json:"last_updated_ts" yaml:"last_updated_ts"`
	UserGroupPermissions map[string]string `json:"user_group_permissions" yaml:"user_group_permissions"`
	IamRolePermissions   map[string]string `json:"iam_role_permissions" yaml:"iam_role_permissions"`
}

// SDBMetadataPage is one page of exported metadata ordered by creation time.
type SDBMetadataPage struct {
	HasNext       bool          `json:"has_next"`
	NextOffset    int           `json:"next_offset,omitempty"`
	Limit         int           `json:"limit"`
	Offset        int           `json:"offset"`
	TotalCount    int           `json:"total_sdb_count"`
	CountInResult int           `json:"sdb_count_in_result"`
	Metadata      []SDBMetadata `json:"safe_deposit_box_metadata"`
}
