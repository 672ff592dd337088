package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/intranet/internal/models"
)

// Audited actions.
const (
	ActionRoleCreated       = "role.created"
	ActionRoleUpdated       = "role.updated"
	ActionRoleDeleted       = "role.deleted"
	ActionUserRoleAssigned  = "user.role_assigned"
	ActionUserLegacyRoleSet = "user.legacy_role_changed"
	ActionUserDeleted       = "user.deleted"
	ActionRBACMigrated      = "rbac.migrated"
	ActionQuizDefined       = "quiz.defined"
	ActionCertificateIssued = "certificate.issued"
	ActionWebhookCreated    = "webhook.created"
	ActionWebhookDeleted    = "webhook.deleted"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

type LogEntry struct {
	ActorID      *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	Details      map[string]interface{}
	IPAddress    string
}

func (s *Service) Log(ctx context.Context, entry LogEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	var ip *netip.Addr
	if entry.IPAddress != "" {
		parsed, err := netip.ParseAddr(entry.IPAddress)
		if err == nil {
			ip = &parsed
		}
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO audit_logs (actor_id, action, resource_type, resource_id, details, ip_address)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ActorID, entry.Action, entry.ResourceType, entry.ResourceID, details, ip,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}

	return nil
}

type Query struct {
	StartDate *time.Time
	EndDate   *time.Time
	Action    string
	ActorID   *uuid.UUID
	Limit     int
	Offset    int
}

func (q Query) toSQL() (string, []interface{}, error) {
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	b := psql.
		Select("id", "actor_id", "action", "resource_type", "resource_id", "details", "ip_address", "created_at").
		From("audit_logs")

	if q.Action != "" {
		b = b.Where(sq.Eq{"action": q.Action})
	}
	if q.ActorID != nil {
		b = b.Where(sq.Expr("actor_id = ?", *q.ActorID))
	}
	if q.StartDate != nil {
		b = b.Where(sq.GtOrEq{"created_at": *q.StartDate})
	}
	if q.EndDate != nil {
		b = b.Where(sq.LtOrEq{"created_at": *q.EndDate})
	}

	return b.OrderBy("created_at DESC").
		Limit(uint64(q.Limit)).
		Offset(uint64(q.Offset)).
		ToSql()
}

func (s *Service) GetAuditLogs(ctx context.Context, q Query) ([]models.AuditLog, error) {
	query, args, err := q.toSQL()
	if err != nil {
		return nil, fmt.Errorf("build audit query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	logs := []models.AuditLog{}
	for rows.Next() {
		var l models.AuditLog
		var resourceType *string
		if err := rows.Scan(&l.ID, &l.ActorID, &l.Action, &resourceType, &l.ResourceID, &l.Details, &l.IPAddress, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		if resourceType != nil {
			l.ResourceType = *resourceType
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
