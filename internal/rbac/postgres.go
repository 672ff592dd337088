package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/intranet/internal/database"
	"github.com/nikhilbhutani/intranet/internal/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on pgx. A store returned inside InTx has no
// pool and runs every statement on the enclosing transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    querier
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PostgresStore{q: tx})
	})
}

const selectUser = `SELECT id, email, azure_ad_id, name, role, role_id, created_at, updated_at FROM users`

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.q.QueryRow(ctx, selectUser+" WHERE id = $1", id).
		Scan(&u.ID, &u.Email, &u.AzureAdID, &u.Name, &u.LegacyRole, &u.RoleID, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) SetUserRole(ctx context.Context, userID uuid.UUID, roleID *uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `UPDATE users SET role_id = $2, updated_at = now() WHERE id = $1`, userID, roleID)
	if err != nil {
		return fmt.Errorf("set user role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) SetUserLegacyRole(ctx context.Context, userID uuid.UUID, role models.LegacyRole) error {
	tag, err := s.q.Exec(ctx, `UPDATE users SET role = $2, updated_at = now() WHERE id = $1`, userID, string(role))
	if err != nil {
		return fmt.Errorf("set user legacy role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	rows, err := s.q.Query(ctx, `SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	var perms []models.Permission
	for rows.Next() {
		var p models.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *PostgresStore) UpsertPermission(ctx context.Context, name, description string) (*models.Permission, error) {
	var p models.Permission
	err := s.q.QueryRow(ctx,
		`INSERT INTO permissions (name, description) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
		 RETURNING id, name, description`,
		name, description,
	).Scan(&p.ID, &p.Name, &p.Description)
	if err != nil {
		return nil, fmt.Errorf("upsert permission %s: %w", name, err)
	}
	return &p, nil
}

const selectRole = `SELECT r.id, r.name, r.description, r.created_at, r.updated_at,
	(SELECT count(*) FROM users u WHERE u.role_id = r.id) AS user_count
	FROM roles r`

func (s *PostgresStore) GetRole(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	var r models.Role
	err := s.q.QueryRow(ctx, selectRole+" WHERE r.id = $1", id).
		Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt, &r.UserCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("role %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get role: %w", err)
	}

	perms, err := s.rolePermissions(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	r.Permissions = perms[id]
	return &r, nil
}

func (s *PostgresStore) ListRoles(ctx context.Context) ([]models.Role, error) {
	rows, err := s.q.Query(ctx, selectRole+" ORDER BY r.name")
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var (
		roles []models.Role
		ids   []uuid.UUID
	)
	for rows.Next() {
		var r models.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt, &r.UserCount); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, r)
		ids = append(ids, r.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return roles, nil
	}

	perms, err := s.rolePermissions(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		roles[i].Permissions = perms[roles[i].ID]
	}
	return roles, nil
}

func (s *PostgresStore) rolePermissions(ctx context.Context, roleIDs []uuid.UUID) (map[uuid.UUID][]models.Permission, error) {
	query, args, err := psql.
		Select("rp.role_id", "p.id", "p.name", "p.description").
		From("role_permissions rp").
		Join("permissions p ON p.id = rp.permission_id").
		Where(sq.Eq{"rp.role_id": roleIDs}).
		OrderBy("p.name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build role permissions query: %w", err)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load role permissions: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]models.Permission, len(roleIDs))
	for rows.Next() {
		var (
			roleID uuid.UUID
			p      models.Permission
		)
		if err := rows.Scan(&roleID, &p.ID, &p.Name, &p.Description); err != nil {
			return nil, fmt.Errorf("scan role permission: %w", err)
		}
		out[roleID] = append(out[roleID], p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RolePermissionNames(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	rows, err := s.q.Query(ctx,
		`SELECT p.name FROM role_permissions rp
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE rp.role_id = $1 ORDER BY p.name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("load role permission names: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan role permission names: %w", err)
	}
	return names, nil
}

func (s *PostgresStore) CreateRole(ctx context.Context, name, description string) (*models.Role, error) {
	var r models.Role
	err := s.q.QueryRow(ctx,
		`INSERT INTO roles (name, description) VALUES ($1, $2)
		 RETURNING id, name, description, created_at, updated_at`,
		name, description,
	).Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt)
	if database.IsUniqueViolation(err, "roles_name_key") {
		return nil, fmt.Errorf("%w: role %q already exists", models.ErrConflict, name)
	}
	if err != nil {
		return nil, fmt.Errorf("insert role: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) UpdateRole(ctx context.Context, id uuid.UUID, name, description string) (*models.Role, error) {
	var r models.Role
	err := s.q.QueryRow(ctx,
		`UPDATE roles SET name = $2, description = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING id, name, description, created_at, updated_at`,
		id, name, description,
	).Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("role %s: %w", id, models.ErrNotFound)
	}
	if database.IsUniqueViolation(err, "roles_name_key") {
		return nil, fmt.Errorf("%w: role %q already exists", models.ErrConflict, name)
	}
	if err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	return &r, nil
}

// UpsertRole keeps updated_at unchanged when the description already matches,
// so repeated migrations leave identical rows.
func (s *PostgresStore) UpsertRole(ctx context.Context, name, description string) (*models.Role, error) {
	var r models.Role
	err := s.q.QueryRow(ctx,
		`INSERT INTO roles (name, description) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE
		   SET description = EXCLUDED.description,
		       updated_at = CASE WHEN roles.description IS DISTINCT FROM EXCLUDED.description
		                         THEN now() ELSE roles.updated_at END
		 RETURNING id, name, description, created_at, updated_at`,
		name, description,
	).Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert role %s: %w", name, err)
	}
	return &r, nil
}

func (s *PostgresStore) ReplaceRolePermissions(ctx context.Context, roleID uuid.UUID, names []string) error {
	unique := dedupe(names)

	if _, err := s.q.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("clear role permissions: %w", err)
	}
	if len(unique) == 0 {
		return nil
	}

	tag, err := s.q.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission_id)
		 SELECT $1::uuid, id FROM permissions WHERE name = ANY($2)`,
		roleID, unique,
	)
	if err != nil {
		return fmt.Errorf("insert role permissions: %w", err)
	}
	if int(tag.RowsAffected()) != len(unique) {
		return fmt.Errorf("%w: unknown permission in %v", models.ErrValidation, unique)
	}
	return nil
}

func (s *PostgresStore) CountUsersWithRole(ctx context.Context, roleID uuid.UUID) (int, error) {
	var n int
	if err := s.q.QueryRow(ctx, `SELECT count(*) FROM users WHERE role_id = $1`, roleID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users with role: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) DeleteRole(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("%w: role is still assigned", models.ErrConflict)
		}
		return fmt.Errorf("delete role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("role %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) BackfillUserRoles(ctx context.Context, byLegacy map[models.LegacyRole]uuid.UUID, fallback uuid.UUID) (int, error) {
	legacy := make([]string, 0, len(byLegacy))
	for r := range byLegacy {
		legacy = append(legacy, string(r))
	}
	sort.Strings(legacy)

	roleCase := sq.Case("role")
	for _, r := range legacy {
		roleCase = roleCase.When(sq.Expr("?", r), sq.Expr("?::uuid", byLegacy[models.LegacyRole(r)]))
	}
	roleCase = roleCase.Else(sq.Expr("?::uuid", fallback))

	query, args, err := psql.Update("users").
		Set("role_id", roleCase).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"role_id": nil}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build backfill query: %w", err)
	}

	tag, err := s.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("backfill user roles: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
