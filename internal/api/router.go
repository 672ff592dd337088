package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/intranet/internal/api/handlers"
	"github.com/nikhilbhutani/intranet/internal/api/middleware"
	"github.com/nikhilbhutani/intranet/internal/auth"
	"github.com/nikhilbhutani/intranet/internal/config"
	"github.com/nikhilbhutani/intranet/internal/metrics"
	"github.com/nikhilbhutani/intranet/internal/rbac"
)

// Dependencies are the services the HTTP surface is built on.
type Dependencies struct {
	Authenticate func(http.Handler) http.Handler
	Authorizer   auth.Authorizer
	RBAC         handlers.RBACService
	Assessment   handlers.AssessmentService
	Audit        handlers.AuditService
	Webhooks     handlers.WebhookService
	Queue        handlers.MigrationQueue
	Health       map[string]handlers.Pinger
	Metrics      *metrics.Metrics
}

type Router struct {
	mux     *chi.Mux
	cfg     config.ServerConfig
	deps    Dependencies
	limiter *middleware.RateLimiter
}

func NewRouter(cfg config.ServerConfig, deps Dependencies) *Router {
	return &Router{
		mux:     chi.NewRouter(),
		cfg:     cfg,
		deps:    deps,
		limiter: middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
}

// Limiter exposes the per-client rate limiter so callers can run its cleanup loop.
func (rt *Router) Limiter() *middleware.RateLimiter {
	return rt.limiter
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux
	d := rt.deps

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(d.Metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.AllowedOrigins))
	r.Use(rt.limiter.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(d.Health)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	authz := auth.NewRBAC(d.Authorizer)
	meH := handlers.NewMeHandler(d.RBAC, d.Assessment)
	rbacH := handlers.NewRBACHandler(d.RBAC, d.Queue)
	quizH := handlers.NewQuizHandler(d.Assessment, d.RBAC)
	certH := handlers.NewCertificateHandler(d.Assessment)
	adminH := handlers.NewAdminHandler(d.Audit)
	webhookH := handlers.NewWebhookHandler(d.Webhooks)

	r.Route("/api/v1", func(r chi.Router) {
		// Public certificate verification
		r.Get("/certificates/{code}", certH.Verify)

		r.Group(func(r chi.Router) {
			r.Use(d.Authenticate)

			r.Route("/me", func(r chi.Router) {
				r.Get("/", meH.Me)
				r.Get("/permissions", meH.Permissions)
				r.Get("/certificates", meH.Certificates)
			})

			r.Route("/quizzes/{id}", func(r chi.Router) {
				r.Get("/", quizH.Get)
				r.Post("/attempts", quizH.SubmitAttempt)
				r.Get("/attempts", quizH.ListAttempts)
			})

			r.Route("/training", func(r chi.Router) {
				r.Use(authz.RequirePermission(rbac.PermManageTraining))
				r.Get("/courses/{id}/quiz", quizH.GetCourseQuiz)
				r.Put("/courses/{id}/quiz", quizH.UpsertCourseQuiz)
				r.Get("/modules/{id}/quiz", quizH.GetModuleQuiz)
				r.Put("/modules/{id}/quiz", quizH.UpsertModuleQuiz)
			})

			r.Route("/admin", func(r chi.Router) {
				// Role administration
				r.Group(func(r chi.Router) {
					r.Use(authz.RequireRoleAdmin())
					r.Get("/permissions", rbacH.ListPermissions)
					r.Route("/roles", func(r chi.Router) {
						r.Get("/", rbacH.ListRoles)
						r.Post("/", rbacH.CreateRole)
						r.Get("/{id}", rbacH.GetRole)
						r.Put("/{id}", rbacH.UpdateRole)
						r.Delete("/{id}", rbacH.DeleteRole)
					})
					r.Put("/users/{id}/role", rbacH.AssignUserRole)
					r.Put("/users/{id}/legacy-role", rbacH.SetLegacyRole)
					r.Delete("/users/{id}", rbacH.DeleteUser)
					r.Post("/rbac/migrate", rbacH.Migrate)
				})

				r.Group(func(r chi.Router) {
					r.Use(authz.RequirePermission(rbac.PermAccessAdmin))
					r.Get("/audit", adminH.AuditLogs)
					r.Route("/webhooks", func(r chi.Router) {
						r.Post("/", webhookH.Create)
						r.Get("/", webhookH.List)
						r.Delete("/{id}", webhookH.Delete)
					})
				})
			})
		})
	})

	return r
}
