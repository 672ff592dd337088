package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/intranet/internal/identity"
	"github.com/nikhilbhutani/intranet/internal/models"
	"github.com/nikhilbhutani/intranet/internal/queue"
	"github.com/nikhilbhutani/intranet/internal/rbac"
)

type RBACHandler struct {
	rbac  RBACService
	queue MigrationQueue
}

func NewRBACHandler(svc RBACService, q MigrationQueue) *RBACHandler {
	return &RBACHandler{rbac: svc, queue: q}
}

func (h *RBACHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.rbac.ListPermissions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"permissions": perms, "count": len(perms)})
}

func (h *RBACHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.rbac.ListRoles(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"roles": roles, "count": len(roles)})
}

func (h *RBACHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	role, err := h.rbac.GetRole(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"role": role})
}

func (h *RBACHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var in rbac.RoleInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	role, err := h.rbac.CreateRole(r.Context(), identity.UserFromContext(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"role": role})
}

func (h *RBACHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in rbac.RoleInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	role, err := h.rbac.UpdateRole(r.Context(), identity.UserFromContext(r.Context()), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"role": role})
}

func (h *RBACHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.rbac.DeleteRole(r.Context(), identity.UserFromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type assignRoleRequest struct {
	RoleID *uuid.UUID `json:"role_id"`
}

func (h *RBACHandler) AssignUserRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.rbac.AssignUserRole(r.Context(), identity.UserFromContext(r.Context()), userID, req.RoleID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": userID, "role_id": req.RoleID})
}

type legacyRoleRequest struct {
	Role models.LegacyRole `json:"role"`
}

func (h *RBACHandler) SetLegacyRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req legacyRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.rbac.SetLegacyRole(r.Context(), identity.UserFromContext(r.Context()), userID, req.Role); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": userID, "role": req.Role})
}

func (h *RBACHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.rbac.DeleteUser(r.Context(), identity.UserFromContext(r.Context()), userID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Migrate runs the RBAC backfill inline, or queues it when ?async=true.
func (h *RBACHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	actorID := identity.UserIDFromContext(r.Context())

	if r.URL.Query().Get("async") == "true" && h.queue != nil {
		payload := queue.RBACMigratePayload{}
		if actorID != nil {
			payload.RequestedBy = actorID.String()
		}
		if err := h.queue.EnqueueRBACMigrate(r.Context(), payload); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	result, err := h.rbac.MigrateRBAC(r.Context(), actorID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
