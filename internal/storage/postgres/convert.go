package postgres

import (
	"github.com/google/uuid"

	"github.com/fieldju/cerberus/internal/domain"
)

// --- SecureData ---

func toSecureDataDomain(m *SecureDataModel) *domain.SecureDataRecord {
	return &domain.SecureDataRecord{
		Path:             m.Path,
		SDBID:            m.SDBID,
		EncryptedBlob:    m.EncryptedBlob,
		Type:             domain.SecureDataType(m.Type),
		SizeInBytes:      m.SizeInBytes,
		TopLevelKeyCount: m.TopLevelKeyCount,
		CreatedBy:        m.CreatedBy,
		CreatedAt:        m.CreatedAt,
		LastUpdatedBy:    m.LastUpdatedBy,
		LastUpdatedAt:    m.LastUpdatedAt,
	}
}

func toSecureDataModel(rec *domain.SecureDataRecord) SecureDataModel {
	return SecureDataModel{
		Path:             rec.Path,
		SDBID:            rec.SDBID,
		EncryptedBlob:    rec.EncryptedBlob,
		Type:             string(rec.Type),
		SizeInBytes:      rec.SizeInBytes,
		TopLevelKeyCount: rec.TopLevelKeyCount,
		CreatedBy:        rec.CreatedBy,
		CreatedAt:        rec.CreatedAt,
		LastUpdatedBy:    rec.LastUpdatedBy,
		LastUpdatedAt:    rec.LastUpdatedAt,
	}
}

// --- SecureDataVersion ---

func toSecureDataVersionDomain(m *SecureDataVersionModel) *domain.SecureDataVersion {
	return &domain.SecureDataVersion{
		SDBID:             m.SDBID,
		Path:              m.Path,
		EncryptedBlob:     m.EncryptedBlob,
		Action:            domain.SecretsAction(m.Action),
		Type:              domain.SecureDataType(m.Type),
		SizeInBytes:       m.SizeInBytes,
		PreviousUpdatedBy: m.PreviousUpdatedBy,
		PreviousUpdatedAt: m.PreviousUpdatedAt,
		ActionPerformedBy: m.ActionPerformedBy,
		ActionPerformedAt: m.ActionPerformedAt,
	}
}

func toSecureDataVersionModel(id uuid.UUID, v *domain.SecureDataVersion) SecureDataVersionModel {
	return SecureDataVersionModel{
		ID:                id,
		SDBID:             v.SDBID,
		Path:              v.Path,
		EncryptedBlob:     v.EncryptedBlob,
		Action:            string(v.Action),
		Type:              string(v.Type),
		SizeInBytes:       v.SizeInBytes,
		PreviousUpdatedBy: v.PreviousUpdatedBy,
		PreviousUpdatedAt: v.PreviousUpdatedAt,
		ActionPerformedBy: v.ActionPerformedBy,
		ActionPerformedAt: v.ActionPerformedAt,
	}
}

// --- SafeDepositBox ---

func toSafeDepositBoxDomain(m *SafeDepositBoxModel) *domain.SafeDepositBox {
	groups := make([]domain.UserGroupPermission, len(m.UserGroupPermissions))
	for i, p := range m.UserGroupPermissions {
		groups[i] = domain.UserGroupPermission{Name: p.Name, RoleID: p.RoleID}
	}
	iams := make([]domain.IamRolePermission, len(m.IamRolePermissions))
	for i, p := range m.IamRolePermissions {
		iams[i] = domain.IamRolePermission{
			AccountID:   p.AccountID,
			IamRoleName: p.IamRoleName,
			RoleID:      p.RoleID,
		}
	}
	return &domain.SafeDepositBox{
		ID:                   m.ID,
		CategoryID:           m.CategoryID,
		Name:                 m.Name,
		Description:          m.Description,
		Path:                 m.Path,
		Owner:                m.Owner,
		CreatedBy:            m.CreatedBy,
		CreatedAt:            m.CreatedAt,
		LastUpdatedBy:        m.LastUpdatedBy,
		LastUpdatedAt:        m.LastUpdatedAt,
		UserGroupPermissions: groups,
		IamRolePermissions:   iams,
	}
}

// toSafeDepositBoxModel converts the box row only; permission grants are
// persisted explicitly by the repository.
func toSafeDepositBoxModel(sdb *domain.SafeDepositBox) SafeDepositBoxModel {
	return SafeDepositBoxModel{
		ID:            sdb.ID,
		CategoryID:    sdb.CategoryID,
		Name:          sdb.Name,
		Description:   sdb.Description,
		Path:          sdb.Path,
		Owner:         sdb.Owner,
		CreatedBy:     sdb.CreatedBy,
		CreatedAt:     sdb.CreatedAt,
		LastUpdatedBy: sdb.LastUpdatedBy,
		LastUpdatedAt: sdb.LastUpdatedAt,
	}
}
