package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/intranet/internal/identity"
	"github.com/nikhilbhutani/intranet/internal/models"
)

// Claims are carried by the HMAC session tokens this service issues. The
// subject is the user id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserStore resolves token subjects to users.
type UserStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Provision(ctx context.Context, c identity.Claims) (*models.User, error)
}

// IDTokenVerifier checks identity-provider ID tokens.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (identity.Claims, error)
}

type JWTMiddleware struct {
	secret []byte
	users  UserStore
	idp    IDTokenVerifier
}

type MiddlewareOption func(*JWTMiddleware)

// WithIDTokenVerifier accepts identity-provider ID tokens when a bearer token
// is not a session token signed with the local secret.
func WithIDTokenVerifier(v IDTokenVerifier) MiddlewareOption {
	return func(m *JWTMiddleware) { m.idp = v }
}

func NewJWTMiddleware(secret string, users UserStore, opts ...MiddlewareOption) *JWTMiddleware {
	m := &JWTMiddleware{
		secret: []byte(secret),
		users:  users,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *JWTMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractBearerToken(r)
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		ctx := r.Context()
		user, err := m.resolve(ctx, tokenStr)
		if err != nil {
			slog.DebugContext(ctx, "authentication failed", "error", err)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(identity.WithUser(ctx, user)))
	})
}

func (m *JWTMiddleware) resolve(ctx context.Context, tokenStr string) (*models.User, error) {
	var sessionErr error
	if len(m.secret) > 0 {
		claims, err := m.parseSession(tokenStr)
		if err == nil {
			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				return nil, fmt.Errorf("invalid user id in token: %w", err)
			}
			return m.users.GetUserByID(ctx, userID)
		}
		sessionErr = err
	}

	if m.idp == nil {
		if sessionErr == nil {
			sessionErr = errors.New("no token verifier configured")
		}
		return nil, sessionErr
	}

	idClaims, err := m.idp.Verify(ctx, tokenStr)
	if err != nil {
		return nil, err
	}
	return m.users.Provision(ctx, idClaims)
}

func (m *JWTMiddleware) parseSession(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
