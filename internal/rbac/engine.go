package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/nikhilbhutani/intranet/internal/audit"
	"github.com/nikhilbhutani/intranet/internal/config"
	"github.com/nikhilbhutani/intranet/internal/metrics"
	"github.com/nikhilbhutani/intranet/internal/models"
)

// AuditLogger records administrative actions.
type AuditLogger interface {
	Log(ctx context.Context, entry audit.LogEntry) error
}

// EventDispatcher announces completed changes to webhook subscribers.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event string, payload interface{}) error
}

// Engine decides capability checks against the dual-track role model and
// administers dynamic roles.
type Engine struct {
	store           Store
	cache           PermissionCache
	roleAdminPolicy string
	audit           AuditLogger
	metrics         *metrics.Metrics
	events          EventDispatcher
	migratedEvent   string
	group           singleflight.Group
}

type Option func(*Engine)

func WithCache(c PermissionCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithRoleAdminPolicy selects how role-management rights are decided; see
// config.RoleAdminPolicyLegacy and config.RoleAdminPolicyPermission.
func WithRoleAdminPolicy(policy string) Option {
	return func(e *Engine) { e.roleAdminPolicy = policy }
}

func WithAuditLogger(a AuditLogger) Option {
	return func(e *Engine) { e.audit = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMigrationEvents announces every successful MigrateRBAC as event,
// whichever entry point ran it.
func WithMigrationEvents(d EventDispatcher, event string) Option {
	return func(e *Engine) {
		e.events = d
		e.migratedEvent = event
	}
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		roleAdminPolicy: config.RoleAdminPolicyLegacy,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResolveCapabilities merges both authorization tracks into one permission set.
//
// A user without a dynamic role gets the canonical permissions of the role its
// legacy enum maps to, so backfilling role_id never changes a decision. A
// legacy ADMIN or HQ_ADMIN holds the whole catalogue regardless of role_id.
func (e *Engine) ResolveCapabilities(ctx context.Context, user *models.User) (Capabilities, error) {
	if user == nil {
		return nil, models.ErrUnauthorized
	}

	if user.LegacyRole.IsSuperuser() {
		return NewCapabilities(AllPermissions()...), nil
	}

	if user.RoleID == nil {
		return NewCapabilities(canonicalRole(CanonicalRoleName(user.LegacyRole)).Permissions...), nil
	}

	names, err := e.rolePermissions(ctx, *user.RoleID)
	if err != nil {
		return nil, fmt.Errorf("resolve capabilities for user %s: %w", user.ID, err)
	}
	return NewCapabilities(names...), nil
}

// Authorize reports whether actor holds permission.
func (e *Engine) Authorize(ctx context.Context, actor *models.User, permission string) (bool, error) {
	caps, err := e.ResolveCapabilities(ctx, actor)
	if err != nil {
		return false, err
	}
	allowed := caps.Has(permission)
	e.metrics.ObserveAuthz(permission, allowed)
	return allowed, nil
}

// CanManageRoles applies the role-admin policy. Under the legacy policy the
// actor's enum must literally be ADMIN (HQ_ADMIN does not qualify); under the
// permission policy MANAGE_ROLES is checked like any other capability.
func (e *Engine) CanManageRoles(ctx context.Context, actor *models.User) (bool, error) {
	if actor == nil {
		return false, models.ErrUnauthorized
	}
	if e.roleAdminPolicy == config.RoleAdminPolicyPermission {
		return e.Authorize(ctx, actor, PermManageRoles)
	}
	return actor.LegacyRole == models.LegacyRoleAdmin, nil
}

func (e *Engine) rolePermissions(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	var gen int64
	if e.cache != nil {
		names, g, ok := e.cache.RolePermissions(ctx, roleID)
		if ok {
			e.metrics.ObservePermissionCache(true)
			return names, nil
		}
		e.metrics.ObservePermissionCache(false)
		gen = g
	}

	// Callers only share a load started at the same generation.
	v, err, _ := e.group.Do(fillKey(roleID, gen), func() (interface{}, error) {
		names, err := e.store.RolePermissionNames(ctx, roleID)
		if err != nil {
			return nil, err
		}
		if e.cache != nil {
			e.cache.StoreRolePermissions(ctx, roleID, gen, names)
		}
		return names, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load role permissions: %w", err)
	}
	return v.([]string), nil
}

func fillKey(roleID uuid.UUID, gen int64) string {
	return roleID.String() + "@" + strconv.FormatInt(gen, 10)
}

func (e *Engine) invalidate(ctx context.Context, roleIDs ...uuid.UUID) {
	if e.cache != nil && len(roleIDs) > 0 {
		e.cache.InvalidateRoles(ctx, roleIDs...)
	}
	// Without a cache every load runs at generation 0.
	for _, id := range roleIDs {
		e.group.Forget(fillKey(id, 0))
	}
}

func (e *Engine) record(ctx context.Context, entry audit.LogEntry) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Log(ctx, entry); err != nil {
		slog.WarnContext(ctx, "failed to write audit log", "action", entry.Action, "error", err)
	}
}
