package assessment

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/intranet/internal/database"
	"github.com/nikhilbhutani/intranet/internal/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, models.ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func (s *PostgresStore) GetCourse(ctx context.Context, id uuid.UUID) (*models.TrainingCourse, error) {
	var c models.TrainingCourse
	err := s.db.QueryRow(ctx, `SELECT id, title FROM training_courses WHERE id = $1`, id).Scan(&c.ID, &c.Title)
	if err != nil {
		return nil, notFound(err, "course", id)
	}
	return &c, nil
}

func (s *PostgresStore) GetModule(ctx context.Context, id uuid.UUID) (*models.TrainingModule, error) {
	var m models.TrainingModule
	err := s.db.QueryRow(ctx, `SELECT id, course_id, title FROM training_modules WHERE id = $1`, id).
		Scan(&m.ID, &m.CourseID, &m.Title)
	if err != nil {
		return nil, notFound(err, "module", id)
	}
	return &m, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx,
		`SELECT id, email, azure_ad_id, name, role, role_id, created_at, updated_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.AzureAdID, &u.Name, &u.LegacyRole, &u.RoleID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return &u, nil
}

const selectQuiz = `SELECT id, module_id, course_id, title, description, passing_score, created_at, updated_at FROM quizzes`

func (s *PostgresStore) GetQuiz(ctx context.Context, id uuid.UUID) (*models.Quiz, error) {
	return s.snapshotQuiz(ctx, selectQuiz+" WHERE id = $1", id)
}

func (s *PostgresStore) GetQuizByAnchor(ctx context.Context, anchor models.Anchor) (*models.Quiz, error) {
	return s.snapshotQuiz(ctx, selectQuiz+" WHERE "+anchorColumn(anchor)+" = $1", anchor.ID)
}

// snapshotQuiz reads the quiz, its questions and its options from one
// snapshot, so a concurrent replace is seen entirely or not at all.
func (s *PostgresStore) snapshotQuiz(ctx context.Context, query string, key uuid.UUID) (*models.Quiz, error) {
	var quiz *models.Quiz
	err := database.WithSnapshot(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		quiz, err = loadQuiz(ctx, tx, tx.QueryRow(ctx, query, key), key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return quiz, nil
}

func anchorColumn(a models.Anchor) string {
	if a.Kind == models.AnchorCourse {
		return "course_id"
	}
	return "module_id"
}

func loadQuiz(ctx context.Context, q querier, row pgx.Row, key uuid.UUID) (*models.Quiz, error) {
	var quiz models.Quiz
	err := row.Scan(&quiz.ID, &quiz.ModuleID, &quiz.CourseID, &quiz.Title, &quiz.Description,
		&quiz.PassingScore, &quiz.CreatedAt, &quiz.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "quiz", key)
	}

	rows, err := q.Query(ctx,
		`SELECT id, quiz_id, position, text, type FROM quiz_questions WHERE quiz_id = $1 ORDER BY position`, quiz.ID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	questions, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (models.QuizQuestion, error) {
		var qq models.QuizQuestion
		err := r.Scan(&qq.ID, &qq.QuizID, &qq.Order, &qq.Text, &qq.Type)
		return qq, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan questions: %w", err)
	}

	rows, err = q.Query(ctx,
		`SELECT o.id, o.question_id, o.position, o.text, o.is_correct
		 FROM quiz_options o JOIN quiz_questions q ON q.id = o.question_id
		 WHERE q.quiz_id = $1 ORDER BY q.position, o.position`, quiz.ID)
	if err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	options, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (models.QuizOption, error) {
		var o models.QuizOption
		err := r.Scan(&o.ID, &o.QuestionID, &o.Order, &o.Text, &o.IsCorrect)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan options: %w", err)
	}

	attachOptions(questions, options)
	quiz.Questions = questions
	return &quiz, nil
}

// attachOptions groups options under their questions. Options whose question
// is not in the set are dropped.
func attachOptions(questions []models.QuizQuestion, options []models.QuizOption) {
	index := make(map[uuid.UUID]int, len(questions))
	for i := range questions {
		index[questions[i].ID] = i
	}
	for _, o := range options {
		i, ok := index[o.QuestionID]
		if !ok {
			continue
		}
		questions[i].Options = append(questions[i].Options, o)
	}
}

func (s *PostgresStore) ReplaceQuiz(ctx context.Context, anchor models.Anchor, in QuizInput) (*models.Quiz, error) {
	var quiz *models.Quiz
	err := database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var moduleID, courseID *uuid.UUID
		if anchor.Kind == models.AnchorCourse {
			courseID = &anchor.ID
		} else {
			moduleID = &anchor.ID
		}

		// Concurrent first writes for one anchor converge on a single row.
		var quizID uuid.UUID
		err := tx.QueryRow(ctx,
			`INSERT INTO quizzes (module_id, course_id, title, description, passing_score)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (`+anchorColumn(anchor)+`) DO UPDATE
			 SET title = EXCLUDED.title, description = EXCLUDED.description,
			     passing_score = EXCLUDED.passing_score, updated_at = now()
			 RETURNING id`,
			moduleID, courseID, in.Title, in.Description, in.PassingScore,
		).Scan(&quizID)
		if err != nil {
			return fmt.Errorf("upsert quiz: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM quiz_questions WHERE quiz_id = $1`, quizID); err != nil {
			return fmt.Errorf("clear questions: %w", err)
		}

		for i, q := range in.Questions {
			var questionID uuid.UUID
			err := tx.QueryRow(ctx,
				`INSERT INTO quiz_questions (quiz_id, position, text, type) VALUES ($1, $2, $3, $4) RETURNING id`,
				quizID, i, q.Text, q.Type,
			).Scan(&questionID)
			if err != nil {
				return fmt.Errorf("insert question %d: %w", i+1, err)
			}

			ins := psql.Insert("quiz_options").Columns("question_id", "position", "text", "is_correct")
			for j, o := range q.Options {
				ins = ins.Values(questionID, j, o.Text, o.IsCorrect)
			}
			query, args, err := ins.ToSql()
			if err != nil {
				return fmt.Errorf("build options insert: %w", err)
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("insert options for question %d: %w", i+1, err)
			}
		}

		quiz, err = loadQuiz(ctx, tx, tx.QueryRow(ctx, selectQuiz+" WHERE id = $1", quizID), quizID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return quiz, nil
}

func (s *PostgresStore) CreateAttempt(ctx context.Context, a *models.QuizAttempt, admit func(AttemptStats) error) error {
	return database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if admit != nil {
			_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
				"quiz_attempts:"+a.UserID.String()+":"+a.QuizID.String())
			if err != nil {
				return fmt.Errorf("lock attempts: %w", err)
			}
			stats, err := attemptStats(ctx, tx, a.UserID, a.QuizID)
			if err != nil {
				return err
			}
			if err := admit(stats); err != nil {
				return err
			}
		}

		err := tx.QueryRow(ctx,
			`INSERT INTO quiz_attempts (quiz_id, user_id, score, passed, answers)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
			a.QuizID, a.UserID, a.Score, a.Passed, a.Answers,
		).Scan(&a.ID, &a.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ListAttempts(ctx context.Context, userID, quizID uuid.UUID) ([]models.QuizAttempt, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, quiz_id, user_id, score, passed, answers, created_at
		 FROM quiz_attempts WHERE user_id = $1 AND quiz_id = $2 ORDER BY created_at DESC`,
		userID, quizID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (models.QuizAttempt, error) {
		var a models.QuizAttempt
		err := r.Scan(&a.ID, &a.QuizID, &a.UserID, &a.Score, &a.Passed, &a.Answers, &a.CreatedAt)
		return a, err
	})
}

func attemptStats(ctx context.Context, q querier, userID, quizID uuid.UUID) (AttemptStats, error) {
	var st AttemptStats
	err := q.QueryRow(ctx,
		`SELECT count(*), max(created_at) FROM quiz_attempts WHERE user_id = $1 AND quiz_id = $2`,
		userID, quizID,
	).Scan(&st.Count, &st.LastAt)
	if err != nil {
		return AttemptStats{}, fmt.Errorf("attempt stats: %w", err)
	}
	return st, nil
}

const selectCertificate = `SELECT id, user_id, course_id, user_name, course_title, code, issued_at FROM certificates`

func scanCertificate(row pgx.Row, c *models.Certificate) error {
	return row.Scan(&c.ID, &c.UserID, &c.CourseID, &c.UserName, &c.CourseTitle, &c.Code, &c.IssuedAt)
}

func (s *PostgresStore) GetCertificate(ctx context.Context, userID, courseID uuid.UUID) (*models.Certificate, error) {
	var c models.Certificate
	err := scanCertificate(s.db.QueryRow(ctx, selectCertificate+" WHERE user_id = $1 AND course_id = $2", userID, courseID), &c)
	if err != nil {
		return nil, notFound(err, "certificate for course", courseID)
	}
	return &c, nil
}

func (s *PostgresStore) GetCertificateByCode(ctx context.Context, code string) (*models.Certificate, error) {
	var c models.Certificate
	err := scanCertificate(s.db.QueryRow(ctx, selectCertificate+" WHERE code = $1", code), &c)
	if err != nil {
		return nil, notFound(err, "certificate", code)
	}
	return &c, nil
}

func (s *PostgresStore) ListCertificates(ctx context.Context, userID uuid.UUID) ([]models.Certificate, error) {
	rows, err := s.db.Query(ctx, selectCertificate+" WHERE user_id = $1 ORDER BY issued_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (models.Certificate, error) {
		var c models.Certificate
		err := scanCertificate(r, &c)
		return c, err
	})
}

func (s *PostgresStore) InsertCertificate(ctx context.Context, c *models.Certificate) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO certificates (user_id, course_id, user_name, course_title, code)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, issued_at`,
		c.UserID, c.CourseID, c.UserName, c.CourseTitle, c.Code,
	).Scan(&c.ID, &c.IssuedAt)
	switch {
	case database.IsUniqueViolation(err, "certificates_user_course_key"):
		return fmt.Errorf("%w: certificate already issued", models.ErrConflict)
	case database.IsUniqueViolation(err, "certificates_code_key"):
		return errCodeTaken
	case err != nil:
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}
