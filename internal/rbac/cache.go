package rbac

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/intranet/internal/cache"
)

// RedisPermissionCache stores role permission sets in Redis for ttl.
//
// Each role has a generation counter. Sets are stored under a key that embeds
// the generation they were read at, and invalidation bumps the counter, so a
// fill that started before an invalidation writes to a key no reader uses.
type RedisPermissionCache struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewRedisPermissionCache(c *cache.Cache, ttl time.Duration) *RedisPermissionCache {
	return &RedisPermissionCache{cache: c, ttl: ttl}
}

func genKey(id uuid.UUID) string {
	return "rbac:role:" + id.String() + ":gen"
}

func roleKey(id uuid.UUID, gen int64) string {
	return "rbac:role:" + id.String() + ":perms:" + strconv.FormatInt(gen, 10)
}

func (c *RedisPermissionCache) generation(ctx context.Context, roleID uuid.UUID) (int64, bool) {
	var gen int64
	err := c.cache.Get(ctx, genKey(roleID), &gen)
	switch {
	case err == nil:
		return gen, true
	case errors.Is(err, cache.ErrMiss):
		return 0, true
	default:
		slog.WarnContext(ctx, "permission cache read failed", "role_id", roleID, "error", err)
		return 0, false
	}
}

// RolePermissions returns the cached set and the generation it was looked up
// at. A negative generation means the cache is unusable and the caller must
// not store.
func (c *RedisPermissionCache) RolePermissions(ctx context.Context, roleID uuid.UUID) ([]string, int64, bool) {
	gen, ok := c.generation(ctx, roleID)
	if !ok {
		return nil, -1, false
	}

	var names []string
	err := c.cache.Get(ctx, roleKey(roleID, gen), &names)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			slog.WarnContext(ctx, "permission cache read failed", "role_id", roleID, "error", err)
		}
		return nil, gen, false
	}
	return names, gen, true
}

func (c *RedisPermissionCache) StoreRolePermissions(ctx context.Context, roleID uuid.UUID, gen int64, names []string) {
	if gen < 0 {
		return
	}
	if names == nil {
		names = []string{}
	}
	if err := c.cache.Set(ctx, roleKey(roleID, gen), names, c.ttl); err != nil {
		slog.WarnContext(ctx, "permission cache write failed", "role_id", roleID, "error", err)
	}
}

func (c *RedisPermissionCache) InvalidateRoles(ctx context.Context, roleIDs ...uuid.UUID) {
	for _, id := range roleIDs {
		if _, err := c.cache.Incr(ctx, genKey(id)); err != nil {
			slog.WarnContext(ctx, "permission cache invalidation failed", "role_id", id, "error", err)
		}
	}
}
