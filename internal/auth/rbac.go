package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nikhilbhutani/intranet/internal/identity"
	"github.com/nikhilbhutani/intranet/internal/models"
)

// Authorizer decides capability checks for the authenticated user.
type Authorizer interface {
	Authorize(ctx context.Context, actor *models.User, permission string) (bool, error)
	CanManageRoles(ctx context.Context, actor *models.User) (bool, error)
}

type RBAC struct {
	authz Authorizer
}

func NewRBAC(authz Authorizer) *RBAC {
	return &RBAC{authz: authz}
}

func (r *RBAC) RequirePermission(perm string) func(http.Handler) http.Handler {
	return r.require(func(ctx context.Context, u *models.User) (bool, error) {
		return r.authz.Authorize(ctx, u, perm)
	})
}

// RequireRoleAdmin admits only actors allowed to administer roles under the
// configured role-admin policy.
func (r *RBAC) RequireRoleAdmin() func(http.Handler) http.Handler {
	return r.require(r.authz.CanManageRoles)
}

func (r *RBAC) require(check func(context.Context, *models.User) (bool, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			user := identity.UserFromContext(req.Context())
			if user == nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			ok, err := check(req.Context(), user)
			if err != nil {
				slog.ErrorContext(req.Context(), "permission check failed", "user_id", user.ID, "error", err)
				writeError(w, http.StatusInternalServerError, "permission check failed")
				return
			}
			if !ok {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, req)
		})
	}
}
