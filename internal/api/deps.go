package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/intranet/internal/api/handlers"
	"github.com/nikhilbhutani/intranet/internal/assessment"
	"github.com/nikhilbhutani/intranet/internal/audit"
	"github.com/nikhilbhutani/intranet/internal/auth"
	"github.com/nikhilbhutani/intranet/internal/cache"
	"github.com/nikhilbhutani/intranet/internal/config"
	"github.com/nikhilbhutani/intranet/internal/identity"
	"github.com/nikhilbhutani/intranet/internal/metrics"
	"github.com/nikhilbhutani/intranet/internal/queue"
	"github.com/nikhilbhutani/intranet/internal/rbac"
	"github.com/nikhilbhutani/intranet/internal/webhook"
)

// Services bundles the engines shared by the API server and the worker.
type Services struct {
	Identity   *identity.Service
	Audit      *audit.Service
	RBAC       *rbac.Engine
	Assessment *assessment.Service
	Webhooks   *webhook.Service
	Dispatcher *webhook.Dispatcher
}

func NewServices(db *pgxpool.Pool, rdb *redis.Client, q *queue.Client, cfg *config.Config, m *metrics.Metrics) *Services {
	auditSvc := audit.NewService(db)
	webhooks := webhook.NewService(db, q)

	engine := rbac.NewEngine(rbac.NewPostgresStore(db),
		rbac.WithCache(rbac.NewRedisPermissionCache(cache.NewCache(rdb, "intranet"), cfg.RBAC.CacheTTL)),
		rbac.WithRoleAdminPolicy(cfg.RBAC.RoleAdminPolicy),
		rbac.WithAuditLogger(auditSvc),
		rbac.WithMetrics(m),
		rbac.WithMigrationEvents(webhooks, webhook.EventRBACMigrated),
	)

	assessmentSvc := assessment.NewService(assessment.NewPostgresStore(db),
		assessment.WithPolicy(assessment.PolicyFromConfig(cfg.Assessment)),
		assessment.WithCodeLength(cfg.Assessment.CertificateCodeLength),
		assessment.WithNotifier(q),
		assessment.WithAuditLogger(auditSvc),
		assessment.WithMetrics(m),
	)

	return &Services{
		Identity:   identity.NewService(db),
		Audit:      auditSvc,
		RBAC:       engine,
		Assessment: assessmentSvc,
		Webhooks:   webhooks,
		Dispatcher: webhook.NewDispatcher(db, nil),
	}
}

// NewDependencies builds the HTTP dependencies. ID tokens from the corporate
// identity provider are accepted when OIDC is configured.
func NewDependencies(ctx context.Context, db *pgxpool.Pool, rdb *redis.Client, q *queue.Client, svc *Services, cfg *config.Config, m *metrics.Metrics) (Dependencies, error) {
	var opts []auth.MiddlewareOption
	if cfg.Auth.OIDCEnabled() {
		verifier, err := auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.OIDCClientID)
		if err != nil {
			return Dependencies{}, fmt.Errorf("oidc provider: %w", err)
		}
		opts = append(opts, auth.WithIDTokenVerifier(verifier))
		slog.Info("oidc login enabled", "issuer", cfg.Auth.OIDCIssuer)
	}
	jwtMW := auth.NewJWTMiddleware(cfg.Auth.JWTSecret, svc.Identity, opts...)

	return Dependencies{
		Authenticate: jwtMW.Authenticate,
		Authorizer:   svc.RBAC,
		RBAC:         svc.RBAC,
		Assessment:   svc.Assessment,
		Audit:        svc.Audit,
		Webhooks:     svc.Webhooks,
		Queue:        q,
		Health: map[string]handlers.Pinger{
			"database": db,
			"redis": handlers.PingFunc(func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}),
		},
		Metrics: m,
	}, nil
}
