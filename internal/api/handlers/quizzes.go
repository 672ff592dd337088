package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/intranet/internal/assessment"
	"github.com/nikhilbhutani/intranet/internal/identity"
	"github.com/nikhilbhutani/intranet/internal/models"
	"github.com/nikhilbhutani/intranet/internal/rbac"
)

type QuizHandler struct {
	assessment AssessmentService
	rbac       RBACService
}

func NewQuizHandler(svc AssessmentService, rbacSvc RBACService) *QuizHandler {
	return &QuizHandler{assessment: svc, rbac: rbacSvc}
}

// Get returns the full definition to training managers and the learner view
// to everyone else.
func (h *QuizHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	editor, err := h.rbac.Authorize(r.Context(), identity.UserFromContext(r.Context()), rbac.PermManageTraining)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if editor {
		quiz, err := h.assessment.GetQuiz(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"quiz": quiz})
		return
	}

	view, err := h.assessment.GetQuizForTaker(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"quiz": view})
}

func (h *QuizHandler) UpsertCourseQuiz(w http.ResponseWriter, r *http.Request) {
	h.upsert(w, r, models.AnchorCourse)
}

func (h *QuizHandler) UpsertModuleQuiz(w http.ResponseWriter, r *http.Request) {
	h.upsert(w, r, models.AnchorModule)
}

func (h *QuizHandler) GetCourseQuiz(w http.ResponseWriter, r *http.Request) {
	h.getByAnchor(w, r, models.AnchorCourse)
}

func (h *QuizHandler) GetModuleQuiz(w http.ResponseWriter, r *http.Request) {
	h.getByAnchor(w, r, models.AnchorModule)
}

func (h *QuizHandler) getByAnchor(w http.ResponseWriter, r *http.Request, kind models.AnchorKind) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	quiz, err := h.assessment.GetQuizByAnchor(r.Context(), models.Anchor{Kind: kind, ID: id})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"quiz": quiz})
}

func (h *QuizHandler) upsert(w http.ResponseWriter, r *http.Request, kind models.AnchorKind) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	user := identity.UserFromContext(r.Context())
	if user == nil {
		writeError(w, r, models.ErrUnauthorized)
		return
	}

	var in assessment.QuizInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	quiz, err := h.assessment.UpsertQuizDefinition(r.Context(), user.ID, models.Anchor{Kind: kind, ID: id}, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"quiz": quiz})
}

type submitAttemptRequest struct {
	Answers map[uuid.UUID]uuid.UUID `json:"answers"`
}

func (h *QuizHandler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	user := identity.UserFromContext(r.Context())
	if user == nil {
		writeError(w, r, models.ErrUnauthorized)
		return
	}

	var req submitAttemptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.assessment.SubmitAttempt(r.Context(), quizID, user.ID, models.Answers(req.Answers))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *QuizHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	user := identity.UserFromContext(r.Context())
	if user == nil {
		writeError(w, r, models.ErrUnauthorized)
		return
	}

	attempts, err := h.assessment.ListAttempts(r.Context(), user.ID, quizID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"attempts": attempts, "count": len(attempts)})
}
