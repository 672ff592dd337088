package rbac

import (
	"context"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/intranet/internal/models"
)

// Store is the persistence the engine needs. Lookups of missing rows return
// an error wrapping models.ErrNotFound; unique violations wrap models.ErrConflict.
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetUserRole(ctx context.Context, userID uuid.UUID, roleID *uuid.UUID) error
	SetUserLegacyRole(ctx context.Context, userID uuid.UUID, role models.LegacyRole) error
	DeleteUser(ctx context.Context, id uuid.UUID) error

	ListPermissions(ctx context.Context) ([]models.Permission, error)
	UpsertPermission(ctx context.Context, name, description string) (*models.Permission, error)

	GetRole(ctx context.Context, id uuid.UUID) (*models.Role, error)
	ListRoles(ctx context.Context) ([]models.Role, error)
	RolePermissionNames(ctx context.Context, roleID uuid.UUID) ([]string, error)
	CreateRole(ctx context.Context, name, description string) (*models.Role, error)
	UpdateRole(ctx context.Context, id uuid.UUID, name, description string) (*models.Role, error)
	UpsertRole(ctx context.Context, name, description string) (*models.Role, error)
	// ReplaceRolePermissions sets the role's permission set to exactly the named
	// permissions. Unknown names wrap models.ErrValidation.
	ReplaceRolePermissions(ctx context.Context, roleID uuid.UUID, permissionNames []string) error
	CountUsersWithRole(ctx context.Context, roleID uuid.UUID) (int, error)
	DeleteRole(ctx context.Context, id uuid.UUID) error

	// BackfillUserRoles assigns role_id to every user whose role_id is null,
	// choosing byLegacy[user.role] or fallback, and returns the number updated.
	BackfillUserRoles(ctx context.Context, byLegacy map[models.LegacyRole]uuid.UUID, fallback uuid.UUID) (int, error)

	// InTx runs fn against a Store bound to one transaction.
	InTx(ctx context.Context, fn func(Store) error) error
}

// PermissionCache caches role permission sets. Implementations must treat
// failures as misses.
type PermissionCache interface {
	RolePermissions(ctx context.Context, roleID uuid.UUID) (names []string, gen int64, ok bool)
	StoreRolePermissions(ctx context.Context, roleID uuid.UUID, gen int64, names []string)
	InvalidateRoles(ctx context.Context, roleIDs ...uuid.UUID)
}
