package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type CertificateHandler struct {
	assessment AssessmentService
}

func NewCertificateHandler(svc AssessmentService) *CertificateHandler {
	return &CertificateHandler{assessment: svc}
}

// Verify looks a certificate up by its public code. Codes are matched
// case-insensitively.
func (h *CertificateHandler) Verify(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "code")))
	cert, err := h.assessment.GetCertificateByCode(r.Context(), code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":        true,
		"code":         cert.Code,
		"user_name":    cert.UserName,
		"course_title": cert.CourseTitle,
		"issued_at":    cert.IssuedAt,
	})
}
