package assessment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/intranet/internal/models"
)

// errCodeTaken is returned by InsertCertificate when the generated code
// collides with an existing certificate.
var errCodeTaken = errors.New("certificate code already in use")

type AttemptStats struct {
	Count  int
	LastAt *time.Time
}

// Store is the persistence the assessment service needs. Missing rows wrap
// models.ErrNotFound.
type Store interface {
	GetCourse(ctx context.Context, id uuid.UUID) (*models.TrainingCourse, error)
	GetModule(ctx context.Context, id uuid.UUID) (*models.TrainingModule, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)

	GetQuiz(ctx context.Context, id uuid.UUID) (*models.Quiz, error)
	GetQuizByAnchor(ctx context.Context, anchor models.Anchor) (*models.Quiz, error)
	// ReplaceQuiz creates or overwrites the quiz attached to anchor, replacing
	// all questions and options atomically.
	ReplaceQuiz(ctx context.Context, anchor models.Anchor, in QuizInput) (*models.Quiz, error)

	// CreateAttempt stores a. A non-nil admit sees the user's history for the
	// quiz and can veto the insert; check and insert are serialized per user
	// and quiz.
	CreateAttempt(ctx context.Context, a *models.QuizAttempt, admit func(AttemptStats) error) error
	ListAttempts(ctx context.Context, userID, quizID uuid.UUID) ([]models.QuizAttempt, error)

	GetCertificate(ctx context.Context, userID, courseID uuid.UUID) (*models.Certificate, error)
	GetCertificateByCode(ctx context.Context, code string) (*models.Certificate, error)
	ListCertificates(ctx context.Context, userID uuid.UUID) ([]models.Certificate, error)
	// InsertCertificate wraps models.ErrConflict when the user already holds a
	// certificate for the course and errCodeTaken when the code is in use.
	InsertCertificate(ctx context.Context, c *models.Certificate) error
}
