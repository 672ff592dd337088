package rbac

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/intranet/internal/audit"
	"github.com/nikhilbhutani/intranet/internal/models"
)

type memRole struct {
	role  models.Role
	perms map[string]bool
}

// memStore is an in-memory Store. InTx snapshots state and restores it when
// fn fails.
type memStore struct {
	mu        sync.Mutex
	users     map[uuid.UUID]models.User
	perms     map[string]models.Permission
	roles     map[uuid.UUID]*memRole
	permReads int
	failStep  string
}

func newMemStore() *memStore {
	return &memStore{
		users: make(map[uuid.UUID]models.User),
		perms: make(map[string]models.Permission),
		roles: make(map[uuid.UUID]*memRole),
	}
}

func (m *memStore) addUser(legacy models.LegacyRole, roleID *uuid.UUID) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := models.User{ID: uuid.New(), Email: uuid.NewString() + "@example.com", LegacyRole: legacy, RoleID: roleID}
	m.users[u.ID] = u
	return u
}

func (m *memStore) user(id uuid.UUID) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id]
}

func (m *memStore) roleByName(name string) (models.Role, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.role.Name == name {
			return m.materialize(r), true
		}
	}
	return models.Role{}, false
}

func (m *memStore) fail(step string) error {
	if m.failStep == step {
		return fmt.Errorf("injected failure at %s", step)
	}
	return nil
}

func (m *memStore) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return &u, nil
}

func (m *memStore) SetUserRole(_ context.Context, userID uuid.UUID, roleID *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return models.ErrNotFound
	}
	u.RoleID = roleID
	m.users[userID] = u
	return nil
}

func (m *memStore) SetUserLegacyRole(_ context.Context, userID uuid.UUID, role models.LegacyRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return models.ErrNotFound
	}
	u.LegacyRole = role
	m.users[userID] = u
	return nil
}

func (m *memStore) DeleteUser(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) ListPermissions(_ context.Context) ([]models.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Permission, 0, len(m.perms))
	for _, p := range m.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) UpsertPermission(_ context.Context, name, description string) (*models.Permission, error) {
	if err := m.fail("permission:" + name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.perms[name]
	if !ok {
		p = models.Permission{ID: uuid.New(), Name: name}
	}
	p.Description = description
	m.perms[name] = p
	return &p, nil
}

func (m *memStore) materialize(r *memRole) models.Role {
	out := r.role
	out.Permissions = nil
	for name := range r.perms {
		out.Permissions = append(out.Permissions, m.perms[name])
	}
	sort.Slice(out.Permissions, func(i, j int) bool { return out.Permissions[i].Name < out.Permissions[j].Name })
	for _, u := range m.users {
		if u.RoleID != nil && *u.RoleID == r.role.ID {
			out.UserCount++
		}
	}
	return out
}

func (m *memStore) GetRole(_ context.Context, id uuid.UUID) (*models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", id, models.ErrNotFound)
	}
	out := m.materialize(r)
	return &out, nil
}

func (m *memStore) ListRoles(_ context.Context) ([]models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, m.materialize(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) RolePermissionNames(_ context.Context, roleID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permReads++
	r, ok := m.roles[roleID]
	if !ok {
		return nil, models.ErrNotFound
	}
	names := make([]string, 0, len(r.perms))
	for n := range r.perms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memStore) nameTaken(name string, except uuid.UUID) bool {
	for id, r := range m.roles {
		if id != except && r.role.Name == name {
			return true
		}
	}
	return false
}

func (m *memStore) CreateRole(_ context.Context, name, description string) (*models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nameTaken(name, uuid.Nil) {
		return nil, fmt.Errorf("%w: role %q already exists", models.ErrConflict, name)
	}
	now := time.Now()
	r := &memRole{
		role:  models.Role{ID: uuid.New(), Name: name, Description: description, CreatedAt: now, UpdatedAt: now},
		perms: map[string]bool{},
	}
	m.roles[r.role.ID] = r
	out := r.role
	return &out, nil
}

func (m *memStore) UpdateRole(_ context.Context, id uuid.UUID, name, description string) (*models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if m.nameTaken(name, id) {
		return nil, fmt.Errorf("%w: role %q already exists", models.ErrConflict, name)
	}
	r.role.Name, r.role.Description, r.role.UpdatedAt = name, description, time.Now()
	out := r.role
	return &out, nil
}

func (m *memStore) UpsertRole(_ context.Context, name, description string) (*models.Role, error) {
	if err := m.fail("role:" + name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.role.Name == name {
			if r.role.Description != description {
				r.role.Description, r.role.UpdatedAt = description, time.Now()
			}
			out := r.role
			return &out, nil
		}
	}
	now := time.Now()
	r := &memRole{
		role:  models.Role{ID: uuid.New(), Name: name, Description: description, CreatedAt: now, UpdatedAt: now},
		perms: map[string]bool{},
	}
	m.roles[r.role.ID] = r
	out := r.role
	return &out, nil
}

func (m *memStore) ReplaceRolePermissions(_ context.Context, roleID uuid.UUID, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[roleID]
	if !ok {
		return models.ErrNotFound
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := m.perms[n]; !ok {
			return fmt.Errorf("%w: unknown permission %q", models.ErrValidation, n)
		}
		set[n] = true
	}
	r.perms = set
	return nil
}

func (m *memStore) CountUsersWithRole(_ context.Context, roleID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.users {
		if u.RoleID != nil && *u.RoleID == roleID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) DeleteRole(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.roles, id)
	return nil
}

func (m *memStore) BackfillUserRoles(_ context.Context, byLegacy map[models.LegacyRole]uuid.UUID, fallback uuid.UUID) (int, error) {
	if err := m.fail("backfill"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, u := range m.users {
		if u.RoleID != nil {
			continue
		}
		target, ok := byLegacy[u.LegacyRole]
		if !ok {
			target = fallback
		}
		u.RoleID = &target
		m.users[id] = u
		n++
	}
	return n, nil
}

type memSnapshot struct {
	users map[uuid.UUID]models.User
	perms map[string]models.Permission
	roles map[uuid.UUID]memRole
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := memSnapshot{
		users: make(map[uuid.UUID]models.User, len(m.users)),
		perms: make(map[string]models.Permission, len(m.perms)),
		roles: make(map[uuid.UUID]memRole, len(m.roles)),
	}
	for k, v := range m.users {
		s.users[k] = v
	}
	for k, v := range m.perms {
		s.perms[k] = v
	}
	for k, v := range m.roles {
		perms := make(map[string]bool, len(v.perms))
		for p := range v.perms {
			perms[p] = true
		}
		s.roles[k] = memRole{role: v.role, perms: perms}
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users, m.perms = s.users, s.perms
	m.roles = make(map[uuid.UUID]*memRole, len(s.roles))
	for k, v := range s.roles {
		v := v
		m.roles[k] = &v
	}
}

func (m *memStore) InTx(_ context.Context, fn func(Store) error) error {
	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) Log(_ context.Context, entry audit.LogEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, entry.Action)
	return nil
}
