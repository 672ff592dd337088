package rbac

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/intranet/internal/audit"
	"github.com/nikhilbhutani/intranet/internal/models"
)

// MigrateRBAC backfills the dynamic model from the legacy enum. It upserts the
// permission catalogue and the canonical roles by name, resets each canonical
// role's permission set to its definition, and assigns role_id to users that
// have none. Users already carrying a role_id are left alone, so the procedure
// is safe to re-run. Everything happens in one transaction.
func (e *Engine) MigrateRBAC(ctx context.Context, actorID *uuid.UUID) (*models.MigrationResult, error) {
	var (
		result  models.MigrationResult
		roleIDs = make(map[string]uuid.UUID, len(canonicalRoles))
	)

	err := e.store.InTx(ctx, func(tx Store) error {
		for _, p := range catalogue {
			if _, err := tx.UpsertPermission(ctx, p.Name, p.Description); err != nil {
				return fmt.Errorf("upsert permissions: %s: %w", p.Name, err)
			}
			result.PermissionsCount++
		}

		for _, def := range canonicalRoles {
			role, err := tx.UpsertRole(ctx, def.Name, def.Description)
			if err != nil {
				return fmt.Errorf("upsert roles: %s: %w", def.Name, err)
			}
			if err := tx.ReplaceRolePermissions(ctx, role.ID, def.Permissions); err != nil {
				return fmt.Errorf("upsert roles: %s permissions: %w", def.Name, err)
			}
			roleIDs[def.Name] = role.ID
			result.RolesCount++
		}

		byLegacy := map[models.LegacyRole]uuid.UUID{
			models.LegacyRoleHQAdmin: roleIDs[RoleHQAdmin],
			models.LegacyRoleAdmin:   roleIDs[RoleAdmin],
			models.LegacyRoleManager: roleIDs[RoleManager],
		}
		n, err := tx.BackfillUserRoles(ctx, byLegacy, roleIDs[RoleEmployee])
		if err != nil {
			return fmt.Errorf("migrate users: %w", err)
		}
		result.UsersMigrated = n
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("migrate rbac: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(roleIDs))
	for _, id := range roleIDs {
		ids = append(ids, id)
	}
	e.invalidate(ctx, ids...)
	e.metrics.ObserveUsersMigrated(result.UsersMigrated)

	slog.InfoContext(ctx, "rbac migration complete",
		"permissions", result.PermissionsCount,
		"roles", result.RolesCount,
		"users_migrated", result.UsersMigrated,
	)
	e.record(ctx, audit.LogEntry{
		ActorID:      actorID,
		Action:       audit.ActionRBACMigrated,
		ResourceType: "rbac",
		Details: map[string]interface{}{
			"permissions_count": result.PermissionsCount,
			"roles_count":       result.RolesCount,
			"users_migrated":    result.UsersMigrated,
		},
	})

	if e.events != nil {
		if err := e.events.Dispatch(ctx, e.migratedEvent, &result); err != nil {
			slog.WarnContext(ctx, "failed to announce rbac migration", "error", err)
		}
	}
	return &result, nil
}
