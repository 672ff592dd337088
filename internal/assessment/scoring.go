package assessment

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/intranet/internal/models"
)

type Score struct {
	Correct int  `json:"correct"`
	Total   int  `json:"total"`
	Percent int  `json:"score"`
	Passed  bool `json:"passed"`
}

// ScoreAttempt grades answers against quiz. A question counts as correct when
// the chosen option is the first option, by order, flagged correct; further
// correct options are never accepted. A quiz without questions scores 0 and
// does not pass.
func ScoreAttempt(quiz *models.Quiz, answers models.Answers) Score {
	s := Score{Total: len(quiz.Questions)}
	if s.Total == 0 {
		return s
	}

	for _, q := range quiz.Questions {
		want, ok := firstCorrect(q.Options)
		if !ok {
			continue
		}
		if got, answered := answers[q.ID]; answered && got == want {
			s.Correct++
		}
	}

	s.Percent = int(math.Round(100 * float64(s.Correct) / float64(s.Total)))
	s.Passed = s.Percent >= quiz.PassingScore
	return s
}

func firstCorrect(options []models.QuizOption) (uuid.UUID, bool) {
	sorted := make([]models.QuizOption, len(options))
	copy(sorted, options)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	for _, o := range sorted {
		if o.IsCorrect {
			return o.ID, true
		}
	}
	return uuid.Nil, false
}
