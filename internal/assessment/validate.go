package assessment

import (
	"fmt"
	"strings"

	"github.com/nikhilbhutani/intranet/internal/models"
)

type QuizInput struct {
	Title        string          `json:"title"`
	Description  *string         `json:"description,omitempty"`
	PassingScore int             `json:"passing_score"`
	Questions    []QuestionInput `json:"questions"`
}

type QuestionInput struct {
	Text    string        `json:"text"`
	Type    string        `json:"type,omitempty"`
	Options []OptionInput `json:"options"`
}

type OptionInput struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Validate checks the definition before anything is written. It also fills in
// the default question type.
func (in *QuizInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", models.ErrValidation)
	}
	if in.PassingScore < 0 || in.PassingScore > 100 {
		return fmt.Errorf("%w: passing score must be between 0 and 100", models.ErrValidation)
	}
	if len(in.Questions) == 0 {
		return fmt.Errorf("%w: at least one question is required", models.ErrValidation)
	}

	for i := range in.Questions {
		q := &in.Questions[i]
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("%w: question %d has no text", models.ErrValidation, i+1)
		}
		if q.Type == "" {
			q.Type = models.QuestionTypeMultipleChoice
		}
		if q.Type != models.QuestionTypeMultipleChoice {
			return fmt.Errorf("%w: question %d has unsupported type %q", models.ErrValidation, i+1, q.Type)
		}
		if len(q.Options) == 0 {
			return fmt.Errorf("%w: question %d needs at least one option", models.ErrValidation, i+1)
		}
		for j, o := range q.Options {
			if strings.TrimSpace(o.Text) == "" {
				return fmt.Errorf("%w: question %d option %d has no text", models.ErrValidation, i+1, j+1)
			}
		}
	}
	return nil
}
