package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/intranet/internal/audit"
	"github.com/nikhilbhutani/intranet/internal/models"
)

type RoleInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

func (in RoleInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: role name is required", models.ErrValidation)
	}
	for _, p := range in.Permissions {
		if !IsKnownPermission(p) {
			return fmt.Errorf("%w: unknown permission %q", models.ErrValidation, p)
		}
	}
	return nil
}

// requireRoleAdmin re-reads the actor so the decision reflects persisted state.
func (e *Engine) requireRoleAdmin(ctx context.Context, actor *models.User) (*models.User, error) {
	if actor == nil {
		return nil, models.ErrUnauthorized
	}
	current, err := e.store.GetUser(ctx, actor.ID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: actor no longer exists", models.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	ok, err := e.CanManageRoles(ctx, current)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: role management requires an administrator", models.ErrForbidden)
	}
	return current, nil
}

func (e *Engine) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	return e.store.ListPermissions(ctx)
}

func (e *Engine) ListRoles(ctx context.Context) ([]models.Role, error) {
	return e.store.ListRoles(ctx)
}

func (e *Engine) GetRole(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	return e.store.GetRole(ctx, id)
}

func (e *Engine) CreateRole(ctx context.Context, actor *models.User, in RoleInput) (*models.Role, error) {
	current, err := e.requireRoleAdmin(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var role *models.Role
	err = e.store.InTx(ctx, func(tx Store) error {
		created, err := tx.CreateRole(ctx, strings.TrimSpace(in.Name), in.Description)
		if err != nil {
			return err
		}
		if err := tx.ReplaceRolePermissions(ctx, created.ID, in.Permissions); err != nil {
			return err
		}
		role, err = tx.GetRole(ctx, created.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create role: %w", err)
	}

	e.record(ctx, audit.LogEntry{
		ActorID:      &current.ID,
		Action:       audit.ActionRoleCreated,
		ResourceType: "role",
		ResourceID:   &role.ID,
		Details:      map[string]interface{}{"name": role.Name, "permissions": role.PermissionNames()},
	})
	return role, nil
}

// UpdateRole renames the role and replaces its permission set.
func (e *Engine) UpdateRole(ctx context.Context, actor *models.User, id uuid.UUID, in RoleInput) (*models.Role, error) {
	current, err := e.requireRoleAdmin(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var role *models.Role
	err = e.store.InTx(ctx, func(tx Store) error {
		if _, err := tx.UpdateRole(ctx, id, strings.TrimSpace(in.Name), in.Description); err != nil {
			return err
		}
		if err := tx.ReplaceRolePermissions(ctx, id, in.Permissions); err != nil {
			return err
		}
		role, err = tx.GetRole(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	e.invalidate(ctx, id)

	e.record(ctx, audit.LogEntry{
		ActorID:      &current.ID,
		Action:       audit.ActionRoleUpdated,
		ResourceType: "role",
		ResourceID:   &id,
		Details:      map[string]interface{}{"name": role.Name, "permissions": role.PermissionNames()},
	})
	return role, nil
}

// DeleteRole removes an unreferenced role. A role still assigned to any user
// is rejected with models.ErrConflict and left untouched.
func (e *Engine) DeleteRole(ctx context.Context, actor *models.User, id uuid.UUID) error {
	current, err := e.requireRoleAdmin(ctx, actor)
	if err != nil {
		return err
	}

	var name string
	err = e.store.InTx(ctx, func(tx Store) error {
		role, err := tx.GetRole(ctx, id)
		if err != nil {
			return err
		}
		name = role.Name

		n, err := tx.CountUsersWithRole(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: role %q is assigned to %d user(s)", models.ErrConflict, role.Name, n)
		}
		return tx.DeleteRole(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	e.invalidate(ctx, id)

	e.record(ctx, audit.LogEntry{
		ActorID:      &current.ID,
		Action:       audit.ActionRoleDeleted,
		ResourceType: "role",
		ResourceID:   &id,
		Details:      map[string]interface{}{"name": name},
	})
	return nil
}

// AssignUserRole sets or clears (roleID == nil) a user's dynamic role.
func (e *Engine) AssignUserRole(ctx context.Context, actor *models.User, userID uuid.UUID, roleID *uuid.UUID) error {
	current, err := e.requireRoleAdmin(ctx, actor)
	if err != nil {
		return err
	}

	err = e.store.InTx(ctx, func(tx Store) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}
		if roleID != nil {
			if _, err := tx.GetRole(ctx, *roleID); err != nil {
				return err
			}
		}
		return tx.SetUserRole(ctx, userID, roleID)
	})
	if err != nil {
		return fmt.Errorf("assign user role: %w", err)
	}

	e.record(ctx, audit.LogEntry{
		ActorID:      &current.ID,
		Action:       audit.ActionUserRoleAssigned,
		ResourceType: "user",
		ResourceID:   &userID,
		Details:      map[string]interface{}{"role_id": roleID},
	})
	return nil
}

// SetLegacyRole changes a user's legacy enum role. An administrator cannot
// move themselves off ADMIN; the check is keyed on actor == target.
func (e *Engine) SetLegacyRole(ctx context.Context, actor *models.User, userID uuid.UUID, role models.LegacyRole) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown legacy role %q", models.ErrValidation, role)
	}
	current, err := e.requireRoleAdmin(ctx, actor)
	if err != nil {
		return err
	}
	if current.ID == userID && current.LegacyRole == models.LegacyRoleAdmin && role != models.LegacyRoleAdmin {
		return fmt.Errorf("%w: administrators cannot remove their own ADMIN role", models.ErrForbidden)
	}

	target, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("set legacy role: %w", err)
	}
	if err := e.store.SetUserLegacyRole(ctx, userID, role); err != nil {
		return fmt.Errorf("set legacy role: %w", err)
	}

	slog.InfoContext(ctx, "legacy role changed", "user_id", userID, "from", target.LegacyRole, "to", role)
	e.record(ctx, audit.LogEntry{
		ActorID:      &current.ID,
		Action:       audit.ActionUserLegacyRoleSet,
		ResourceType: "user",
		ResourceID:   &userID,
		Details:      map[string]interface{}{"from": target.LegacyRole, "to": role},
	})
	return nil
}

// DeleteUser removes a user record. Actors cannot delete themselves.
func (e *Engine) DeleteUser(ctx context.Context, actor *models.User, userID uuid.UUID) error {
	current, err := e.requireRoleAdmin(ctx, actor)
	if err != nil {
		return err
	}
	if current.ID == userID {
		return fmt.Errorf("%w: users cannot delete their own account", models.ErrForbidden)
	}

	if err := e.store.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	e.record(ctx, audit.LogEntry{
		ActorID:      &current.ID,
		Action:       audit.ActionUserDeleted,
		ResourceType: "user",
		ResourceID:   &userID,
	})
	return nil
}
