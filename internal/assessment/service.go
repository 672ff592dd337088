package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/intranet/internal/audit"
	"github.com/nikhilbhutani/intranet/internal/metrics"
	"github.com/nikhilbhutani/intranet/internal/models"
	"github.com/nikhilbhutani/intranet/internal/queue"
)

const defaultCodeLength = 12

type AuditLogger interface {
	Log(ctx context.Context, entry audit.LogEntry) error
}

// CertificateNotifier is told about newly created certificates.
type CertificateNotifier interface {
	EnqueueCertificateIssued(ctx context.Context, payload queue.CertificateIssuedPayload) error
}

type Service struct {
	store      Store
	policy     Policy
	codeLength int
	notifier   CertificateNotifier
	audit      AuditLogger
	metrics    *metrics.Metrics
	now        func() time.Time
}

type Option func(*Service)

func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithCodeLength(n int) Option {
	return func(s *Service) { s.codeLength = n }
}

func WithNotifier(n CertificateNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithAuditLogger(a AuditLogger) Option {
	return func(s *Service) { s.audit = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		codeLength: defaultCodeLength,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertQuizDefinition attaches a quiz to a course or module, replacing any
// existing definition. Invalid input is rejected before anything is written.
func (s *Service) UpsertQuizDefinition(ctx context.Context, actorID uuid.UUID, anchor models.Anchor, in QuizInput) (*models.Quiz, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	switch anchor.Kind {
	case models.AnchorCourse:
		if _, err := s.store.GetCourse(ctx, anchor.ID); err != nil {
			return nil, fmt.Errorf("course %s: %w", anchor.ID, err)
		}
	case models.AnchorModule:
		if _, err := s.store.GetModule(ctx, anchor.ID); err != nil {
			return nil, fmt.Errorf("module %s: %w", anchor.ID, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown quiz anchor %q", models.ErrValidation, anchor.Kind)
	}

	quiz, err := s.store.ReplaceQuiz(ctx, anchor, in)
	if err != nil {
		return nil, fmt.Errorf("save quiz: %w", err)
	}

	slog.InfoContext(ctx, "quiz defined", "quiz_id", quiz.ID, "anchor", anchor.Kind, "anchor_id", anchor.ID, "questions", len(quiz.Questions))
	s.record(ctx, audit.LogEntry{
		ActorID:      &actorID,
		Action:       audit.ActionQuizDefined,
		ResourceType: "quiz",
		ResourceID:   &quiz.ID,
		Details: map[string]interface{}{
			"anchor":        anchor.Kind,
			"anchor_id":     anchor.ID,
			"questions":     len(quiz.Questions),
			"passing_score": quiz.PassingScore,
		},
	})
	return quiz, nil
}

type SubmitResult struct {
	Attempt         *models.QuizAttempt `json:"attempt"`
	Score           int                 `json:"score"`
	Passed          bool                `json:"passed"`
	CertificateID   *uuid.UUID          `json:"certificate_id,omitempty"`
	CertificateCode *string             `json:"certificate_code,omitempty"`
	// CertificatePending is set when the attempt passed but issuing the
	// certificate failed.
	CertificatePending bool `json:"certificate_pending,omitempty"`
}

// SubmitAttempt grades and records an attempt. Every admitted attempt is
// stored; a passing attempt on a course quiz also issues the course
// certificate.
func (s *Service) SubmitAttempt(ctx context.Context, quizID, userID uuid.UUID, answers models.Answers) (*SubmitResult, error) {
	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("load quiz: %w", err)
	}
	if len(quiz.Questions) == 0 {
		return nil, fmt.Errorf("%w: quiz has no questions", models.ErrValidation)
	}

	score := ScoreAttempt(quiz, answers)

	raw, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("marshal answers: %w", err)
	}
	attempt := &models.QuizAttempt{
		QuizID:  quizID,
		UserID:  userID,
		Score:   score.Percent,
		Passed:  score.Passed,
		Answers: raw,
	}
	var admit func(AttemptStats) error
	var refused error
	if s.policy != (Policy{}) {
		admit = func(stats AttemptStats) error {
			refused = s.policy.check(stats, s.now())
			return refused
		}
	}
	if err := s.store.CreateAttempt(ctx, attempt, admit); err != nil {
		if refused != nil {
			return nil, refused
		}
		return nil, fmt.Errorf("save attempt: %w", err)
	}
	s.metrics.ObserveAttempt(score.Percent, score.Passed)

	result := &SubmitResult{Attempt: attempt, Score: score.Percent, Passed: score.Passed}
	if !score.Passed || quiz.CourseID == nil {
		return result, nil
	}

	cert, err := s.IssueCertificate(ctx, userID, *quiz.CourseID)
	if err != nil {
		// The attempt is already committed. The next passing attempt
		// issues the certificate.
		slog.ErrorContext(ctx, "certificate issuance failed",
			"user_id", userID, "course_id", *quiz.CourseID, "attempt_id", attempt.ID, "error", err)
		result.CertificatePending = true
		return result, nil
	}
	result.CertificateID = &cert.ID
	result.CertificateCode = &cert.Code
	return result, nil
}

func (s *Service) GetQuiz(ctx context.Context, id uuid.UUID) (*models.Quiz, error) {
	return s.store.GetQuiz(ctx, id)
}

func (s *Service) GetQuizByAnchor(ctx context.Context, anchor models.Anchor) (*models.Quiz, error) {
	return s.store.GetQuizByAnchor(ctx, anchor)
}

// GetQuizForTaker returns the quiz without the answer key.
func (s *Service) GetQuizForTaker(ctx context.Context, id uuid.UUID) (*QuizView, error) {
	quiz, err := s.store.GetQuiz(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewQuizView(quiz), nil
}

func (s *Service) ListAttempts(ctx context.Context, userID, quizID uuid.UUID) ([]models.QuizAttempt, error) {
	return s.store.ListAttempts(ctx, userID, quizID)
}

func (s *Service) record(ctx context.Context, entry audit.LogEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		slog.WarnContext(ctx, "failed to write audit log", "action", entry.Action, "error", err)
	}
}
