package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type TrainingCourse struct {
	ID    uuid.UUID `json:"id" db:"id"`
	Title string    `json:"title" db:"title"`
}

type TrainingModule struct {
	ID       uuid.UUID `json:"id" db:"id"`
	CourseID uuid.UUID `json:"course_id" db:"course_id"`
	Title    string    `json:"title" db:"title"`
}

type AnchorKind string

const (
	AnchorModule AnchorKind = "module"
	AnchorCourse AnchorKind = "course"
)

// Anchor identifies the single training entity a quiz is attached to.
type Anchor struct {
	Kind AnchorKind `json:"kind"`
	ID   uuid.UUID  `json:"id"`
}

const QuestionTypeMultipleChoice = "MULTIPLE_CHOICE"

type Quiz struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	ModuleID     *uuid.UUID     `json:"module_id,omitempty" db:"module_id"`
	CourseID     *uuid.UUID     `json:"course_id,omitempty" db:"course_id"`
	Title        string         `json:"title" db:"title"`
	Description  *string        `json:"description,omitempty" db:"description"`
	PassingScore int            `json:"passing_score" db:"passing_score"`
	Questions    []QuizQuestion `json:"questions"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

func (q *Quiz) Anchor() Anchor {
	if q.CourseID != nil {
		return Anchor{Kind: AnchorCourse, ID: *q.CourseID}
	}
	if q.ModuleID != nil {
		return Anchor{Kind: AnchorModule, ID: *q.ModuleID}
	}
	return Anchor{}
}

type QuizQuestion struct {
	ID      uuid.UUID    `json:"id" db:"id"`
	QuizID  uuid.UUID    `json:"quiz_id" db:"quiz_id"`
	Order   int          `json:"order" db:"position"`
	Text    string       `json:"text" db:"text"`
	Type    string       `json:"type" db:"type"`
	Options []QuizOption `json:"options"`
}

type QuizOption struct {
	ID         uuid.UUID `json:"id" db:"id"`
	QuestionID uuid.UUID `json:"question_id" db:"question_id"`
	Order      int       `json:"order" db:"position"`
	Text       string    `json:"text" db:"text"`
	IsCorrect  bool      `json:"is_correct" db:"is_correct"`
}

// Answers maps question id to the chosen option id.
type Answers map[uuid.UUID]uuid.UUID

type QuizAttempt struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	QuizID    uuid.UUID       `json:"quiz_id" db:"quiz_id"`
	UserID    uuid.UUID       `json:"user_id" db:"user_id"`
	Score     int             `json:"score" db:"score"`
	Passed    bool            `json:"passed" db:"passed"`
	Answers   json.RawMessage `json:"answers" db:"answers"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

type Certificate struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	CourseID    uuid.UUID `json:"course_id" db:"course_id"`
	UserName    string    `json:"user_name" db:"user_name"`
	CourseTitle string    `json:"course_title" db:"course_title"`
	Code        string    `json:"code" db:"code"`
	IssuedAt    time.Time `json:"issued_at" db:"issued_at"`
}
