package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/intranet/internal/audit"
)

type AdminHandler struct {
	auditSvc AuditService
}

func NewAdminHandler(auditSvc AuditService) *AdminHandler {
	return &AdminHandler{auditSvc: auditSvc}
}

func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := audit.Query{
		Action: params.Get("action"),
	}

	q.Limit, _ = strconv.Atoi(params.Get("limit"))
	q.Offset, _ = strconv.Atoi(params.Get("offset"))

	if s := params.Get("actor_id"); s != "" {
		if id, err := uuid.Parse(s); err == nil {
			q.ActorID = &id
		}
	}
	if s := params.Get("start_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err == nil {
			q.StartDate = &t
		}
	}
	if s := params.Get("end_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err == nil {
			q.EndDate = &t
		}
	}

	logs, err := h.auditSvc.GetAuditLogs(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"audit_logs": logs, "count": len(logs)})
}
