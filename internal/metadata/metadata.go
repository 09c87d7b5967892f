// Package metadata implements export and restore of safe deposit box
// metadata for disaster recovery. Exports carry only human-readable names;
// restores re-resolve every name against the target environment's directory,
// because internal ids are not portable across environments.
package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/google/uuid"

	"github.com/fieldju/cerberus/internal/domain"
)

// iamRoleArnPattern recognizes grants of the shape
// arn:aws:iam::<accountId>:role/<roleName>.
var iamRoleArnPattern = regexp.MustCompile(`^arn:aws:iam::([^:/]*):role/(.+)$`)

// iamRoleArnTemplate rebuilds the ARN form for export.
const iamRoleArnTemplate = "arn:aws:iam::%s:role/%s"

// Directory resolves role and category names to environment-local ids and
// back. Maps are recomputed fresh on every engine call; nothing is cached
// across calls.
type Directory interface {
	CategoryIDByName(ctx context.Context, name string) (uuid.UUID, bool, error)
	RoleByName(ctx context.Context, name string) (*domain.Role, error)
	CategoryIDToNameMap(ctx context.Context) (map[uuid.UUID]string, error)
	RoleIDToNameMap(ctx context.Context) (map[uuid.UUID]string, error)
}

// SDBStore is the persistence contract for the safe deposit box entity.
// Restore differs from a normal create/update only in that it persists the
// audit fields it is given instead of deriving them from the caller.
type SDBStore interface {
	IDByName(ctx context.Context, name string) (uuid.UUID, bool, error)
	ListPage(ctx context.Context, limit, offset int) ([]domain.SafeDepositBox, int, error)
	Restore(ctx context.Context, sdb *domain.SafeDepositBox, actor string) error
}

// SecretRestorer feeds backed-up secret payloads through the secure data
// engine during a whole-box restore.
type SecretRestorer interface {
	RestoreSDBSecrets(ctx context.Context, sdbID uuid.UUID, data map[string]map[string]any, principal string) error
}

// Engine reconstructs and restores safe deposit box metadata.
type Engine struct {
	sdbs    SDBStore
	dir     Directory
	secrets SecretRestorer
	logger  *slog.Logger
	newID   func() uuid.UUID
}

// NewEngine creates a metadata engine. secrets may be nil when only
// metadata-level export/restore is needed.
func NewEngine(sdbs SDBStore, dir Directory, secrets SecretRestorer, logger *slog.Logger) *Engine {
	return &Engine{
		sdbs:    sdbs,
		dir:     dir,
		secrets: secrets,
		logger:  logger,
		newID:   uuid.New,
	}
}

// Export fetches one page of box metadata ordered by creation time, joining
// in category and role names. Pagination is exact: a page ending precisely
// at totalCount has no next page.
func (e *Engine) Export(ctx context.Context, limit, offset int) (*domain.SDBMetadataPage, error) {
	categoryNames, err := e.dir.CategoryIDToNameMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading category names: %w", err)
	}
	roleNames, err := e.dir.RoleIDToNameMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading role names: %w", err)
	}
	boxes, totalCount, err := e.sdbs.ListPage(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing safe deposit boxes: %w", err)
	}

	metadata := make([]domain.SDBMetadata, 0, len(boxes))
	for _, sdb := range boxes {
		metadata = append(metadata, domain.SDBMetadata{
			Name:                 sdb.Name,
			Path:                 sdb.Path,
			Category:             categoryNames[sdb.CategoryID],
			Owner:                sdb.Owner,
			Description:          sdb.Description,
			CreatedBy:            sdb.CreatedBy,
			CreatedAt:            sdb.CreatedAt,
			LastUpdatedBy:        sdb.LastUpdatedBy,
			LastUpdatedAt:        sdb.LastUpdatedAt,
			UserGroupPermissions: userGroupPermissionMap(roleNames, sdb.UserGroupPermissions),
			IamRolePermissions:   iamRolePermissionMap(roleNames, sdb.IamRolePermissions),
		})
	}

	page := &domain.SDBMetadataPage{
		Limit:         limit,
		Offset:        offset,
		TotalCount:    totalCount,
		CountInResult: len(metadata),
		HasNext:       totalCount > offset+limit,
		Metadata:      metadata,
	}
	if page.HasNext {
		page.NextOffset = offset + limit
	}
	return page, nil
}

// Restore creates or force-overwrites a safe deposit box from backed-up
// metadata. The box is keyed by name: an existing box keeps its id, a new
// one gets a minted id. Category and role names must resolve in the target
// directory and every IAM grant ARN must parse; any failure aborts the whole
// restore with nothing written. Audit fields are taken verbatim from the
// input, preserving original provenance.
func (e *Engine) Restore(ctx context.Context, md domain.SDBMetadata, adminActor string) (uuid.UUID, error) {
	e.logger.Info("restoring safe deposit box metadata", slog.String("name", md.Name))

	id, found, err := e.sdbs.IDByName(ctx, md.Name)
	if err != nil {
		return uuid.Nil, fmt.Errorf("looking up safe deposit box %q: %w", md.Name, err)
	}
	if found {
		e.logger.Info("found existing safe deposit box, forcing restore",
			slog.String("name", md.Name), slog.String("id", id.String()))
	} else {
		id = e.newID()
		e.logger.Info("no safe deposit box found, creating new",
			slog.String("name", md.Name), slog.String("id", id.String()))
	}

	categoryID, ok, err := e.dir.CategoryIDByName(ctx, md.Category)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolving category %q: %w", md.Category, err)
	}
	if !ok {
		return uuid.Nil, InvalidCategoryNameError{Name: md.Category}
	}

	userGroupPermissions := make([]domain.UserGroupPermission, 0, len(md.UserGroupPermissions))
	for groupName, roleName := range md.UserGroupPermissions {
		roleID, err := e.roleIDByName(ctx, roleName)
		if err != nil {
			return uuid.Nil, err
		}
		userGroupPermissions = append(userGroupPermissions, domain.UserGroupPermission{
			Name:   groupName,
			RoleID: roleID,
		})
	}

	iamRolePermissions := make([]domain.IamRolePermission, 0, len(md.IamRolePermissions))
	for iamRoleArn, roleName := range md.IamRolePermissions {
		m := iamRoleArnPattern.FindStringSubmatch(iamRoleArn)
		if m == nil {
			return uuid.Nil, InvalidIamRoleArnError{ARN: iamRoleArn}
		}
		roleID, err := e.roleIDByName(ctx, roleName)
		if err != nil {
			return uuid.Nil, err
		}
		iamRolePermissions = append(iamRolePermissions, domain.IamRolePermission{
			AccountID:   m[1],
			IamRoleName: m[2],
			RoleID:      roleID,
		})
	}

	sdb := &domain.SafeDepositBox{
		ID:                   id,
		CategoryID:           categoryID,
		Name:                 md.Name,
		Description:          md.Description,
		Path:                 md.Path,
		Owner:                md.Owner,
		CreatedBy:            md.CreatedBy,
		CreatedAt:            md.CreatedAt,
		LastUpdatedBy:        md.LastUpdatedBy,
		LastUpdatedAt:        md.LastUpdatedAt,
		UserGroupPermissions: userGroupPermissions,
		IamRolePermissions:   iamRolePermissions,
	}

	if err := e.sdbs.Restore(ctx, sdb, adminActor); err != nil {
		return uuid.Nil, fmt.Errorf("persisting safe deposit box %q: %w", md.Name, err)
	}
	return id, nil
}

// RestoreWithSecrets restores box metadata and then bulk-writes the box's
// backed-up secret payloads through the secure data engine.
func (e *Engine) RestoreWithSecrets(ctx context.Context, md domain.SDBMetadata, data map[string]map[string]any, adminActor string) (uuid.UUID, error) {
	id, err := e.Restore(ctx, md, adminActor)
	if err != nil {
		return uuid.Nil, err
	}
	if e.secrets == nil || len(data) == 0 {
		return id, nil
	}
	if err := e.secrets.RestoreSDBSecrets(ctx, id, data, adminActor); err != nil {
		return uuid.Nil, fmt.Errorf("restoring secrets for safe deposit box %q: %w", md.Name, err)
	}
	return id, nil
}

// roleIDByName maps a role name to its environment-local id.
func (e *Engine) roleIDByName(ctx context.Context, roleName string) (uuid.UUID, error) {
	role, err := e.dir.RoleByName(ctx, roleName)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolving role %q: %w", roleName, err)
	}
	if role == nil {
		return uuid.Nil, InvalidRoleNameError{RoleName: roleName}
	}
	return role.ID, nil
}

func userGroupPermissionMap(roleNames map[uuid.UUID]string, permissions []domain.UserGroupPermission) map[string]string {
	out := make(map[string]string, len(permissions))
	for _, p := range permissions {
		out[p.Name] = roleNames[p.RoleID]
	}
	return out
}

func iamRolePermissionMap(roleNames map[uuid.UUID]string, permissions []domain.IamRolePermission) map[string]string {
	out := make(map[string]string, len(permissions))
	for _, p := range permissions {
		arn := fmt.Sprintf(iamRoleArnTemplate, p.AccountID, p.IamRoleName)
		out[arn] = roleNames[p.RoleID]
	}
	return out
}
