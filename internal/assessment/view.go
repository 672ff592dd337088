package assessment

import (
	"github.com/google/uuid"

	"github.com/nikhilbhutani/intranet/internal/models"
)

// QuizView is the quiz as shown to a learner.
type QuizView struct {
	ID           uuid.UUID      `json:"id"`
	Title        string         `json:"title"`
	Description  *string        `json:"description,omitempty"`
	PassingScore int            `json:"passing_score"`
	Questions    []QuestionView `json:"questions"`
}

type QuestionView struct {
	ID      uuid.UUID    `json:"id"`
	Order   int          `json:"order"`
	Text    string       `json:"text"`
	Type    string       `json:"type"`
	Options []OptionView `json:"options"`
}

type OptionView struct {
	ID    uuid.UUID `json:"id"`
	Order int       `json:"order"`
	Text  string    `json:"text"`
}

func NewQuizView(q *models.Quiz) *QuizView {
	v := &QuizView{
		ID:           q.ID,
		Title:        q.Title,
		Description:  q.Description,
		PassingScore: q.PassingScore,
		Questions:    make([]QuestionView, len(q.Questions)),
	}
	for i, qq := range q.Questions {
		qv := QuestionView{ID: qq.ID, Order: qq.Order, Text: qq.Text, Type: qq.Type, Options: make([]OptionView, len(qq.Options))}
		for j, o := range qq.Options {
			qv.Options[j] = OptionView{ID: o.ID, Order: o.Order, Text: o.Text}
		}
		v.Questions[i] = qv
	}
	return v
}
