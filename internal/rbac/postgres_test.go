package rbac

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/intranet/internal/config"
	"github.com/nikhilbhutani/intranet/internal/database"
	"github.com/nikhilbhutani/intranet/internal/models"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	require.NoError(t, database.RunMigrations(dsn))

	pool, err := database.NewPool(context.Background(), config.DatabaseConfig{URL: dsn, MaxConns: 4, MinConns: 1})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(context.Background(),
		`TRUNCATE users, role_permissions, roles, permissions CASCADE`)
	require.NoError(t, err)
	return pool
}

func TestPostgresStore_MigrateRBAC(t *testing.T) {
	ctx := context.Background()
	pool := testPool(t)
	store := NewPostgresStore(pool)
	e := NewEngine(store)

	for _, r := range []models.LegacyRole{models.LegacyRoleEmployee, models.LegacyRoleHQAdmin, models.LegacyRoleManager} {
		_, err := pool.Exec(ctx, `INSERT INTO users (email, role) VALUES ($1, $2)`, string(r)+"@example.com", string(r))
		require.NoError(t, err)
	}

	res, err := e.MigrateRBAC(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 3, res.UsersMigrated)

	before, err := store.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, before, 4)

	res, err = e.MigrateRBAC(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, res.UsersMigrated)

	after, err := store.ListRoles(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after)

	var hqRole string
	err = pool.QueryRow(ctx,
		`SELECT r.name FROM users u JOIN roles r ON r.id = u.role_id WHERE u.role = 'HQ_ADMIN'`).Scan(&hqRole)
	require.NoError(t, err)
	require.Equal(t, RoleHQAdmin, hqRole)
}

func TestPostgresStore_DeleteReferencedRole(t *testing.T) {
	ctx := context.Background()
	pool := testPool(t)
	store := NewPostgresStore(pool)
	e := NewEngine(store)

	_, err := e.MigrateRBAC(ctx, nil)
	require.NoError(t, err)

	var adminID string
	err = pool.QueryRow(ctx, `INSERT INTO users (email, role) VALUES ('root@example.com', 'ADMIN') RETURNING id`).Scan(&adminID)
	require.NoError(t, err)
	admin, err := store.GetUser(ctx, mustUUID(t, adminID))
	require.NoError(t, err)

	role, err := e.CreateRole(ctx, admin, RoleInput{Name: "Desk", Permissions: []string{PermManageTickets}})
	require.NoError(t, err)
	require.NoError(t, e.AssignUserRole(ctx, admin, admin.ID, &role.ID))

	err = e.DeleteRole(ctx, admin, role.ID)
	require.ErrorIs(t, err, models.ErrConflict)

	_, err = e.CreateRole(ctx, admin, RoleInput{Name: "Desk"})
	require.ErrorIs(t, err, models.ErrConflict)

	_, err = e.CreateRole(ctx, admin, RoleInput{Name: "Ghost", Permissions: []string{PermManageTickets, PermManageTickets}})
	require.NoError(t, err)
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
