package assessment

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/nikhilbhutani/intranet/internal/models"
)

type ServiceSuite struct {
	suite.Suite

	ctx      context.Context
	store    *memStore
	notifier *recordingNotifier
	svc      *Service
	course   models.TrainingCourse
	module   models.TrainingModule
	editor   models.User
	learner  models.User
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = newMemStore()
	s.notifier = &recordingNotifier{}
	s.svc = NewService(s.store, WithNotifier(s.notifier))
	s.course = s.store.addCourse("Fire Safety")
	s.module = s.store.addModule(s.course.ID, "Extinguishers")
	s.editor = s.store.addUser("Editor")
	s.learner = s.store.addUser("Ada Learner")
}

func (s *ServiceSuite) courseQuiz(passing int) *models.Quiz {
	in := validInput()
	in.PassingScore = passing
	quiz, err := s.svc.UpsertQuizDefinition(s.ctx, s.editor.ID, models.Anchor{Kind: models.AnchorCourse, ID: s.course.ID}, in)
	s.Require().NoError(err)
	return quiz
}

func correctOption(q models.QuizQuestion) uuid.UUID {
	id, _ := firstCorrect(q.Options)
	return id
}

func wrongOption(q models.QuizQuestion) uuid.UUID {
	for _, o := range q.Options {
		if !o.IsCorrect {
			return o.ID
		}
	}
	return uuid.New()
}

func (s *ServiceSuite) TestUpsertQuizDefinition_CreatesOrderedQuiz() {
	quiz := s.courseQuiz(50)

	s.Require().Equal(&s.course.ID, quiz.CourseID)
	s.Require().Nil(quiz.ModuleID)
	s.Require().Len(quiz.Questions, 2)
	for i, q := range quiz.Questions {
		s.Require().Equal(i, q.Order)
		for j, o := range q.Options {
			s.Require().Equal(j, o.Order)
		}
	}
}

func (s *ServiceSuite) TestUpsertQuizDefinition_ReplacesExisting() {
	first := s.courseQuiz(50)

	in := validInput()
	in.Title = "Fire Safety v2"
	in.Questions = in.Questions[:1]
	second, err := s.svc.UpsertQuizDefinition(s.ctx, s.editor.ID, models.Anchor{Kind: models.AnchorCourse, ID: s.course.ID}, in)
	s.Require().NoError(err)

	s.Require().Equal(first.ID, second.ID)
	s.Require().Equal("Fire Safety v2", second.Title)
	s.Require().Len(second.Questions, 1)
	s.Require().NotEqual(first.Questions[0].ID, second.Questions[0].ID)
}

func (s *ServiceSuite) TestUpsertQuizDefinition_InvalidLeavesQuizIntact() {
	original := s.courseQuiz(50)

	in := validInput()
	in.Questions[1].Options[0].Text = ""
	_, err := s.svc.UpsertQuizDefinition(s.ctx, s.editor.ID, models.Anchor{Kind: models.AnchorCourse, ID: s.course.ID}, in)
	s.Require().ErrorIs(err, models.ErrValidation)

	stored, err := s.svc.GetQuiz(s.ctx, original.ID)
	s.Require().NoError(err)
	s.Require().Equal(original, stored)
}

func (s *ServiceSuite) TestUpsertQuizDefinition_StoreFailure() {
	s.store.replaceErr = errors.New("connection reset")

	_, err := s.svc.UpsertQuizDefinition(s.ctx, s.editor.ID, models.Anchor{Kind: models.AnchorModule, ID: s.module.ID}, validInput())
	s.Require().ErrorContains(err, "save quiz")
}

func (s *ServiceSuite) TestUpsertQuizDefinition_Anchors() {
	tests := []struct {
		name   string
		anchor models.Anchor
		target error
	}{
		{"missing course", models.Anchor{Kind: models.AnchorCourse, ID: uuid.New()}, models.ErrNotFound},
		{"missing module", models.Anchor{Kind: models.AnchorModule, ID: uuid.New()}, models.ErrNotFound},
		{"unknown kind", models.Anchor{Kind: "lesson", ID: s.course.ID}, models.ErrValidation},
		{"module", models.Anchor{Kind: models.AnchorModule, ID: s.module.ID}, nil},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			quiz, err := s.svc.UpsertQuizDefinition(s.ctx, s.editor.ID, tt.anchor, validInput())
			if tt.target != nil {
				s.Require().ErrorIs(err, tt.target)
				return
			}
			s.Require().NoError(err)
			s.Require().Equal(tt.anchor, quiz.Anchor())
		})
	}
}

func (s *ServiceSuite) TestSubmitAttempt_PassIssuesCertificate() {
	quiz := s.courseQuiz(50)
	answers := models.Answers{
		quiz.Questions[0].ID: correctOption(quiz.Questions[0]),
		quiz.Questions[1].ID: wrongOption(quiz.Questions[1]),
	}

	res, err := s.svc.SubmitAttempt(s.ctx, quiz.ID, s.learner.ID, answers)
	s.Require().NoError(err)
	s.Require().Equal(50, res.Score)
	s.Require().True(res.Passed)
	s.Require().NotNil(res.CertificateID)
	s.Require().Regexp(regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{12}$`), *res.CertificateCode)

	cert, err := s.svc.GetCertificateByCode(s.ctx, *res.CertificateCode)
	s.Require().NoError(err)
	s.Require().Equal("Ada Learner", cert.UserName)
	s.Require().Equal("Fire Safety", cert.CourseTitle)
	s.Require().Len(s.notifier.payloads, 1)
}

func (s *ServiceSuite) TestSubmitAttempt_FailStillRecorded() {
	quiz := s.courseQuiz(50)
	answers := models.Answers{
		quiz.Questions[0].ID: wrongOption(quiz.Questions[0]),
		quiz.Questions[1].ID: wrongOption(quiz.Questions[1]),
	}

	res, err := s.svc.SubmitAttempt(s.ctx, quiz.ID, s.learner.ID, answers)
	s.Require().NoError(err)
	s.Require().Zero(res.Score)
	s.Require().False(res.Passed)
	s.Require().Nil(res.CertificateID)
	s.Require().Nil(res.CertificateCode)
	s.Require().Zero(s.store.certCount())

	attempts, err := s.svc.ListAttempts(s.ctx, s.learner.ID, quiz.ID)
	s.Require().NoError(err)
	s.Require().Len(attempts, 1)
	s.Require().False(attempts[0].Passed)
}

func (s *ServiceSuite) TestSubmitAttempt_RepassKeepsCertificate() {
	quiz := s.courseQuiz(0)

	first, err := s.svc.SubmitAttempt(s.ctx, quiz.ID, s.learner.ID, models.Answers{})
	s.Require().NoError(err)
	second, err := s.svc.SubmitAttempt(s.ctx, quiz.ID, s.learner.ID, models.Answers{})
	s.Require().NoError(err)

	s.Require().Equal(*first.CertificateCode, *second.CertificateCode)
	s.Require().Equal(1, s.store.certCount())
	s.Require().Len(s.notifier.payloads, 1)
}

func (s *ServiceSuite) TestSubmitAttempt_ModuleQuizNoCertificate() {
	quiz, err := s.svc.UpsertQuizDefinition(s.ctx, s.editor.ID, models.Anchor{Kind: models.AnchorModule, ID: s.module.ID}, validInput())
	s.Require().NoError(err)

	res, err := s.svc.SubmitAttempt(s.ctx, quiz.ID, s.learner.ID, models.Answers{
		quiz.Questions[0].ID: correctOption(quiz.Questions[0]),
		quiz.Questions[1].ID: correctOption(quiz.Questions[1]),
	})
	s.Require().NoError(err)
	s.Require().True(res.Passed)
	s.Require().Nil(res.CertificateID)
	s.Require().Zero(s.store.certCount())
}

func (s *ServiceSuite) TestSubmitAttempt_Errors() {
	_, err := s.svc.SubmitAttempt(s.ctx, uuid.New(), s.learner.ID, models.Answers{})
	s.Require().ErrorIs(err, models.ErrNotFound)

	empty := models.Quiz{ID: uuid.New(), CourseID: &s.course.ID, PassingScore: 0}
	s.store.quizzes[empty.ID] = empty
	_, err = s.svc.SubmitAttempt(s.ctx, empty.ID, s.learner.ID, models.Answers{})
	s.Require().ErrorIs(err, models.ErrValidation)
	s.Require().Empty(s.store.attempts)
}

func (s *ServiceSuite) TestSubmitAttempt_Policy() {
	now := time.Now()
	s.svc = NewService(s.store,
		WithPolicy(Policy{MaxAttempts: 2, RetryCooldown: time.Minute}),
		WithClock(func() time.Time { return now }),
	)
	quiz := s.courseQuiz(100)

	_, err := s.svc.SubmitAttempt(s.ctx, quiz.ID, s.learner.ID, models.Answers{})
	s.Require().NoError(err)

	_, err = s.svc.SubmitAttempt(s.ctx, quiz.ID, s.learner.ID, models.Answers{})
	s.Require().ErrorIs(err, models.ErrAttemptLimit)

	now = now.Add(2 * time.Minute)
	_, err = s.svc.SubmitAttempt(s.ctx, quiz.ID, s.learner.ID, models.Answers{})
	s.Require().NoError(err)

	now = now.Add(time.Hour)
	_, err = s.svc.SubmitAttempt(s.ctx, quiz.ID, s.learner.ID, models.Answers{})
	s.Require().ErrorIs(err, models.ErrAttemptLimit)
}

func (s *ServiceSuite) TestSubmitAttempt_ConcurrentSubmitsRespectLimit() {
	s.svc = NewService(s.store, WithPolicy(Policy{MaxAttempts: 3}))
	quiz := s.courseQuiz(100)

	const n = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		refused  int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.SubmitAttempt(s.ctx, quiz.ID, s.learner.ID, models.Answers{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, models.ErrAttemptLimit):
				refused++
			}
		}()
	}
	wg.Wait()

	s.Require().Equal(3, admitted)
	s.Require().Equal(n-3, refused)
	attempts, err := s.svc.ListAttempts(s.ctx, s.learner.ID, quiz.ID)
	s.Require().NoError(err)
	s.Require().Len(attempts, 3)
}

func (s *ServiceSuite) TestSubmitAttempt_CertificateFailureKeepsAttempt() {
	quiz := s.courseQuiz(50)
	answers := models.Answers{
		quiz.Questions[0].ID: correctOption(quiz.Questions[0]),
		quiz.Questions[1].ID: correctOption(quiz.Questions[1]),
	}
	s.store.insertErr = errors.New("connection reset")

	res, err := s.svc.SubmitAttempt(s.ctx, quiz.ID, s.learner.ID, answers)
	s.Require().NoError(err)
	s.Require().True(res.Passed)
	s.Require().True(res.CertificatePending)
	s.Require().NotNil(res.Attempt)
	s.Require().Nil(res.CertificateID)
	s.Require().Zero(s.store.certCount())

	attempts, err := s.svc.ListAttempts(s.ctx, s.learner.ID, quiz.ID)
	s.Require().NoError(err)
	s.Require().Len(attempts, 1)
	s.Require().Equal(res.Attempt.ID, attempts[0].ID)

	s.store.insertErr = nil
	res, err = s.svc.SubmitAttempt(s.ctx, quiz.ID, s.learner.ID, answers)
	s.Require().NoError(err)
	s.Require().False(res.CertificatePending)
	s.Require().NotNil(res.CertificateID)
	s.Require().Equal(1, s.store.certCount())
}

func (s *ServiceSuite) TestGetQuizForTaker_HidesAnswerKey() {
	quiz := s.courseQuiz(50)

	view, err := s.svc.GetQuizForTaker(s.ctx, quiz.ID)
	s.Require().NoError(err)
	s.Require().Len(view.Questions, 2)
	s.Require().Equal(quiz.Questions[0].Options[1].ID, view.Questions[0].Options[1].ID)
}

func (s *ServiceSuite) TestIssueCertificate_LostRace() {
	var winner string
	s.store.beforeInsert = func(c *models.Certificate) {
		rival := *c
		rival.Code = "RIVAL0000000"
		s.Require().NoError(s.store.InsertCertificate(s.ctx, &rival))
		winner = rival.Code
	}

	cert, err := s.svc.IssueCertificate(s.ctx, s.learner.ID, s.course.ID)
	s.Require().NoError(err)
	s.Require().Equal(winner, cert.Code)
	s.Require().Equal(1, s.store.certCount())
	s.Require().Empty(s.notifier.payloads)
}

func (s *ServiceSuite) TestIssueCertificate_CodeCollisionRetries() {
	s.store.takenCodes = 2

	cert, err := s.svc.IssueCertificate(s.ctx, s.learner.ID, s.course.ID)
	s.Require().NoError(err)
	s.Require().Len(cert.Code, 12)

	s.store.takenCodes = maxCodeAttempts
	other := s.store.addUser("Grace")
	_, err = s.svc.IssueCertificate(s.ctx, other.ID, s.course.ID)
	s.Require().Error(err)
}

func (s *ServiceSuite) TestIssueCertificate_Concurrent() {
	const n = 16
	codes := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cert, err := s.svc.IssueCertificate(s.ctx, s.learner.ID, s.course.ID)
			if err == nil {
				codes[i] = cert.Code
			}
		}(i)
	}
	wg.Wait()

	for _, c := range codes {
		s.Require().Equal(codes[0], c)
	}
	s.Require().NotEmpty(codes[0])
	s.Require().Equal(1, s.store.certCount())
}

func TestGenerateCode(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := GenerateCode(12)
		require.NoError(t, err)
		require.Len(t, code, 12)
		require.NotRegexp(t, `[ILOU]`, code)
		seen[code] = true
	}
	require.Len(t, seen, 200)
}
