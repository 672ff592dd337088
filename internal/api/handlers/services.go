package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/intranet/internal/assessment"
	"github.com/nikhilbhutani/intranet/internal/audit"
	"github.com/nikhilbhutani/intranet/internal/models"
	"github.com/nikhilbhutani/intranet/internal/queue"
	"github.com/nikhilbhutani/intranet/internal/rbac"
	"github.com/nikhilbhutani/intranet/internal/webhook"
)

// RBACService is implemented by *rbac.Engine.
type RBACService interface {
	ResolveCapabilities(ctx context.Context, user *models.User) (rbac.Capabilities, error)
	Authorize(ctx context.Context, actor *models.User, permission string) (bool, error)

	ListPermissions(ctx context.Context) ([]models.Permission, error)
	ListRoles(ctx context.Context) ([]models.Role, error)
	GetRole(ctx context.Context, id uuid.UUID) (*models.Role, error)
	CreateRole(ctx context.Context, actor *models.User, in rbac.RoleInput) (*models.Role, error)
	UpdateRole(ctx context.Context, actor *models.User, id uuid.UUID, in rbac.RoleInput) (*models.Role, error)
	DeleteRole(ctx context.Context, actor *models.User, id uuid.UUID) error

	AssignUserRole(ctx context.Context, actor *models.User, userID uuid.UUID, roleID *uuid.UUID) error
	SetLegacyRole(ctx context.Context, actor *models.User, userID uuid.UUID, role models.LegacyRole) error
	DeleteUser(ctx context.Context, actor *models.User, userID uuid.UUID) error

	MigrateRBAC(ctx context.Context, actorID *uuid.UUID) (*models.MigrationResult, error)
}

// AssessmentService is implemented by *assessment.Service.
type AssessmentService interface {
	UpsertQuizDefinition(ctx context.Context, actorID uuid.UUID, anchor models.Anchor, in assessment.QuizInput) (*models.Quiz, error)
	SubmitAttempt(ctx context.Context, quizID, userID uuid.UUID, answers models.Answers) (*assessment.SubmitResult, error)
	GetQuiz(ctx context.Context, id uuid.UUID) (*models.Quiz, error)
	GetQuizByAnchor(ctx context.Context, anchor models.Anchor) (*models.Quiz, error)
	GetQuizForTaker(ctx context.Context, id uuid.UUID) (*assessment.QuizView, error)
	ListAttempts(ctx context.Context, userID, quizID uuid.UUID) ([]models.QuizAttempt, error)
	ListCertificates(ctx context.Context, userID uuid.UUID) ([]models.Certificate, error)
	GetCertificateByCode(ctx context.Context, code string) (*models.Certificate, error)
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, q audit.Query) ([]models.AuditLog, error)
}

type WebhookService interface {
	Create(ctx context.Context, actorID uuid.UUID, req webhook.CreateRequest) (*models.Webhook, error)
	List(ctx context.Context) ([]models.Webhook, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// MigrationQueue schedules background RBAC migrations.
type MigrationQueue interface {
	EnqueueRBACMigrate(ctx context.Context, payload queue.RBACMigratePayload) error
}
