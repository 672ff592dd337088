package assessment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/intranet/internal/models"
	"github.com/nikhilbhutani/intranet/internal/queue"
)

type memStore struct {
	mu       sync.Mutex
	courses  map[uuid.UUID]models.TrainingCourse
	modules  map[uuid.UUID]models.TrainingModule
	users    map[uuid.UUID]models.User
	quizzes  map[uuid.UUID]models.Quiz
	attempts []models.QuizAttempt
	certs    []models.Certificate

	// beforeInsert runs ahead of InsertCertificate and can simulate a
	// concurrent writer.
	beforeInsert func(c *models.Certificate)
	takenCodes   int
	replaceErr   error
	insertErr    error
}

func newMemStore() *memStore {
	return &memStore{
		courses: make(map[uuid.UUID]models.TrainingCourse),
		modules: make(map[uuid.UUID]models.TrainingModule),
		users:   make(map[uuid.UUID]models.User),
		quizzes: make(map[uuid.UUID]models.Quiz),
	}
}

func (m *memStore) addCourse(title string) models.TrainingCourse {
	c := models.TrainingCourse{ID: uuid.New(), Title: title}
	m.courses[c.ID] = c
	return c
}

func (m *memStore) addModule(courseID uuid.UUID, title string) models.TrainingModule {
	mod := models.TrainingModule{ID: uuid.New(), CourseID: courseID, Title: title}
	m.modules[mod.ID] = mod
	return mod
}

func (m *memStore) addUser(name string) models.User {
	u := models.User{ID: uuid.New(), Name: name, Email: name + "@example.com", LegacyRole: models.LegacyRoleEmployee}
	m.users[u.ID] = u
	return u
}

func (m *memStore) GetCourse(_ context.Context, id uuid.UUID) (*models.TrainingCourse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &c, nil
}

func (m *memStore) GetModule(_ context.Context, id uuid.UUID) (*models.TrainingModule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod, ok := m.modules[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &mod, nil
}

func (m *memStore) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &u, nil
}

func (m *memStore) GetQuiz(_ context.Context, id uuid.UUID) (*models.Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &q, nil
}

func (m *memStore) GetQuizByAnchor(_ context.Context, anchor models.Anchor) (*models.Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.quizzes {
		if q.Anchor() == anchor {
			return &q, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memStore) ReplaceQuiz(_ context.Context, anchor models.Anchor, in QuizInput) (*models.Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return nil, m.replaceErr
	}

	quiz := models.Quiz{ID: uuid.New(), CreatedAt: time.Now()}
	for _, q := range m.quizzes {
		if q.Anchor() == anchor {
			quiz = q
		}
	}
	if anchor.Kind == models.AnchorCourse {
		quiz.CourseID = &anchor.ID
	} else {
		quiz.ModuleID = &anchor.ID
	}
	quiz.Title, quiz.Description, quiz.PassingScore = in.Title, in.Description, in.PassingScore
	quiz.UpdatedAt = time.Now()
	quiz.Questions = make([]models.QuizQuestion, len(in.Questions))
	for i, qi := range in.Questions {
		q := models.QuizQuestion{ID: uuid.New(), QuizID: quiz.ID, Order: i, Text: qi.Text, Type: qi.Type}
		for j, oi := range qi.Options {
			q.Options = append(q.Options, models.QuizOption{
				ID: uuid.New(), QuestionID: q.ID, Order: j, Text: oi.Text, IsCorrect: oi.IsCorrect,
			})
		}
		quiz.Questions[i] = q
	}
	m.quizzes[quiz.ID] = quiz
	return &quiz, nil
}

func (m *memStore) CreateAttempt(_ context.Context, a *models.QuizAttempt, admit func(AttemptStats) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if admit != nil {
		if err := admit(m.statsLocked(a.UserID, a.QuizID)); err != nil {
			return err
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	m.attempts = append(m.attempts, *a)
	return nil
}

func (m *memStore) ListAttempts(_ context.Context, userID, quizID uuid.UUID) ([]models.QuizAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.QuizAttempt
	for _, a := range m.attempts {
		if a.UserID == userID && a.QuizID == quizID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) statsLocked(userID, quizID uuid.UUID) AttemptStats {
	var st AttemptStats
	for _, a := range m.attempts {
		if a.UserID == userID && a.QuizID == quizID {
			st.Count++
			created := a.CreatedAt
			if st.LastAt == nil || created.After(*st.LastAt) {
				st.LastAt = &created
			}
		}
	}
	return st
}

func (m *memStore) GetCertificate(_ context.Context, userID, courseID uuid.UUID) (*models.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.certs {
		if c.UserID == userID && c.CourseID == courseID {
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memStore) GetCertificateByCode(_ context.Context, code string) (*models.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.certs {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memStore) ListCertificates(_ context.Context, userID uuid.UUID) ([]models.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Certificate
	for _, c := range m.certs {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) InsertCertificate(_ context.Context, c *models.Certificate) error {
	if m.beforeInsert != nil {
		hook := m.beforeInsert
		m.beforeInsert = nil
		hook(c)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if m.takenCodes > 0 {
		m.takenCodes--
		return errCodeTaken
	}
	for _, existing := range m.certs {
		if existing.UserID == c.UserID && existing.CourseID == c.CourseID {
			return fmt.Errorf("%w: certificate already issued", models.ErrConflict)
		}
		if existing.Code == c.Code {
			return errCodeTaken
		}
	}
	c.ID = uuid.New()
	c.IssuedAt = time.Now()
	m.certs = append(m.certs, *c)
	return nil
}

func (m *memStore) certCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.certs)
}

type recordingNotifier struct {
	mu       sync.Mutex
	payloads []queue.CertificateIssuedPayload
}

func (n *recordingNotifier) EnqueueCertificateIssued(_ context.Context, p queue.CertificateIssuedPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, p)
	return nil
}
