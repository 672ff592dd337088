package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/intranet/internal/models"
)

type contextKey string

const userKey contextKey = "user"

// WithUser stores the authenticated actor on the request context. Only the
// HTTP edge reads it back; core services take the actor as an argument.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

func UserIDFromContext(ctx context.Context) *uuid.UUID {
	if u := UserFromContext(ctx); u != nil {
		id := u.ID
		return &id
	}
	return nil
}
