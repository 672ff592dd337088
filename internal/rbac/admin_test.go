package rbac

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/intranet/internal/audit"
	"github.com/nikhilbhutani/intranet/internal/models"
)

func TestCreateRole(t *testing.T) {
	t.Parallel()

	e, store := seededEngine(t)
	admin := store.addUser(models.LegacyRoleAdmin, nil)
	hq := store.addUser(models.LegacyRoleHQAdmin, nil)

	tests := []struct {
		name  string
		actor *models.User
		in    RoleInput
		errFn require.ErrorAssertionFunc
	}{
		{"admin creates role", &admin, RoleInput{Name: "Editors", Permissions: []string{PermManageHubs}}, require.NoError},
		{"duplicate name", &admin, RoleInput{Name: RoleEmployee}, require.Error},
		{"blank name", &admin, RoleInput{Name: "  "}, require.Error},
		{"unknown permission", &admin, RoleInput{Name: "Bad", Permissions: []string{"FLY"}}, require.Error},
		{"hq admin is not a role admin", &hq, RoleInput{Name: "HQ Made"}, require.Error},
		{"anonymous", nil, RoleInput{Name: "Anon"}, require.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, err := e.CreateRole(context.Background(), tt.actor, tt.in)
			tt.errFn(t, err)
			if err == nil {
				require.Equal(t, tt.in.Name, role.Name)
				require.Equal(t, tt.in.Permissions, role.PermissionNames())
			}
		})
	}

	_, ok := store.roleByName("Bad")
	require.False(t, ok)
}

func TestCreateRole_ErrorKinds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, store := seededEngine(t)
	admin := store.addUser(models.LegacyRoleAdmin, nil)
	employee := store.addUser(models.LegacyRoleEmployee, nil)

	_, err := e.CreateRole(ctx, &employee, RoleInput{Name: "X"})
	require.ErrorIs(t, err, models.ErrForbidden)

	_, err = e.CreateRole(ctx, &admin, RoleInput{Name: RoleManager})
	require.ErrorIs(t, err, models.ErrConflict)

	_, err = e.CreateRole(ctx, &admin, RoleInput{Name: "X", Permissions: []string{"NOPE"}})
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestRoleAdmin_RereadsActor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, store := seededEngine(t)
	admin := store.addUser(models.LegacyRoleAdmin, nil)
	stale := admin

	require.NoError(t, store.SetUserLegacyRole(ctx, admin.ID, models.LegacyRoleEmployee))

	_, err := e.CreateRole(ctx, &stale, RoleInput{Name: "Late"})
	require.ErrorIs(t, err, models.ErrForbidden)
}

func TestDeleteRole(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, store := seededEngine(t)
	admin := store.addUser(models.LegacyRoleAdmin, nil)

	used := customRole(t, store, "Used", PermCreatePost)
	store.addUser(models.LegacyRoleEmployee, &used)
	unused := customRole(t, store, "Unused")

	err := e.DeleteRole(ctx, &admin, used)
	require.ErrorIs(t, err, models.ErrConflict)
	_, err = store.GetRole(ctx, used)
	require.NoError(t, err)

	require.NoError(t, e.DeleteRole(ctx, &admin, unused))
	_, err = store.GetRole(ctx, unused)
	require.ErrorIs(t, err, models.ErrNotFound)

	err = e.DeleteRole(ctx, &admin, uuid.New())
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestAssignUserRole(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, store := seededEngine(t)
	admin := store.addUser(models.LegacyRoleAdmin, nil)
	target := store.addUser(models.LegacyRoleEmployee, nil)
	hubs := customRole(t, store, "Hub Editors", PermManageHubs)

	require.NoError(t, e.AssignUserRole(ctx, &admin, target.ID, &hubs))
	require.Equal(t, &hubs, store.user(target.ID).RoleID)

	missing := uuid.New()
	err := e.AssignUserRole(ctx, &admin, target.ID, &missing)
	require.ErrorIs(t, err, models.ErrNotFound)
	require.Equal(t, &hubs, store.user(target.ID).RoleID)

	require.NoError(t, e.AssignUserRole(ctx, &admin, target.ID, nil))
	require.Nil(t, store.user(target.ID).RoleID)
}

func TestSetLegacyRole(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, store := seededEngine(t)
	admin := store.addUser(models.LegacyRoleAdmin, nil)
	other := store.addUser(models.LegacyRoleEmployee, nil)

	tests := []struct {
		name   string
		target uuid.UUID
		role   models.LegacyRole
		errFn  require.ErrorAssertionFunc
	}{
		{"admin promotes other", other.ID, models.LegacyRoleManager, require.NoError},
		{"unknown enum", other.ID, models.LegacyRole("OWNER"), require.Error},
		{"admin demotes self", admin.ID, models.LegacyRoleEmployee, require.Error},
		{"admin to hq admin self", admin.ID, models.LegacyRoleHQAdmin, require.Error},
		{"admin keeps own admin", admin.ID, models.LegacyRoleAdmin, require.NoError},
		{"missing user", uuid.New(), models.LegacyRoleManager, require.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.SetLegacyRole(ctx, &admin, tt.target, tt.role)
			tt.errFn(t, err)
		})
	}

	require.Equal(t, models.LegacyRoleAdmin, store.user(admin.ID).LegacyRole)
	require.Equal(t, models.LegacyRoleManager, store.user(other.ID).LegacyRole)
}

func TestDeleteUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rec := &recordingAudit{}
	e, store := seededEngine(t, WithAuditLogger(rec))
	admin := store.addUser(models.LegacyRoleAdmin, nil)
	other := store.addUser(models.LegacyRoleEmployee, nil)

	err := e.DeleteUser(ctx, &admin, admin.ID)
	require.ErrorIs(t, err, models.ErrForbidden)
	_, err = store.GetUser(ctx, admin.ID)
	require.NoError(t, err)

	require.NoError(t, e.DeleteUser(ctx, &admin, other.ID))
	_, err = store.GetUser(ctx, other.ID)
	require.ErrorIs(t, err, models.ErrNotFound)

	require.Contains(t, rec.actions, audit.ActionUserDeleted)
}
