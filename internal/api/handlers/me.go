package handlers

import (
	"net/http"

	"github.com/nikhilbhutani/intranet/internal/identity"
	"github.com/nikhilbhutani/intranet/internal/models"
)

type MeHandler struct {
	rbac       RBACService
	assessment AssessmentService
}

func NewMeHandler(rbac RBACService, assessment AssessmentService) *MeHandler {
	return &MeHandler{rbac: rbac, assessment: assessment}
}

func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		writeError(w, r, models.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (h *MeHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	caps, err := h.rbac.ResolveCapabilities(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"permissions": caps.Names()})
}

func (h *MeHandler) Certificates(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		writeError(w, r, models.ErrUnauthorized)
		return
	}
	certs, err := h.assessment.ListCertificates(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"certificates": certs, "count": len(certs)})
}
