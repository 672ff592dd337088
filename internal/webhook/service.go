package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/intranet/internal/models"
	"github.com/nikhilbhutani/intranet/internal/queue"
)

// Events a subscription can listen for.
const (
	EventCertificateIssued = "certificate.issued"
	EventRBACMigrated      = "rbac.migrated"
)

var knownEvents = map[string]bool{
	EventCertificateIssued: true,
	EventRBACMigrated:      true,
}

// Enqueuer schedules asynchronous deliveries.
type Enqueuer interface {
	EnqueueWebhookDeliver(ctx context.Context, payload queue.WebhookDeliverPayload) error
}

type Service struct {
	db       *pgxpool.Pool
	enqueuer Enqueuer
}

func NewService(db *pgxpool.Pool, enqueuer Enqueuer) *Service {
	return &Service{db: db, enqueuer: enqueuer}
}

type CreateRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

func (r CreateRequest) Validate() error {
	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("%w: url must be an absolute http(s) URL", models.ErrValidation)
	}
	if len(r.Events) == 0 {
		return fmt.Errorf("%w: at least one event is required", models.ErrValidation)
	}
	for _, e := range r.Events {
		if !knownEvents[e] {
			return fmt.Errorf("%w: unknown event %q", models.ErrValidation, e)
		}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, actorID uuid.UUID, req CreateRequest) (*models.Webhook, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	eventsJSON, err := json.Marshal(req.Events)
	if err != nil {
		return nil, fmt.Errorf("marshal events: %w", err)
	}

	var wh models.Webhook
	err = s.db.QueryRow(ctx,
		`INSERT INTO webhooks (url, events, secret, is_active, created_by)
		 VALUES ($1, $2, $3, true, $4)
		 RETURNING id, url, events, is_active, created_by, created_at`,
		req.URL, eventsJSON, secret, actorID,
	).Scan(&wh.ID, &wh.URL, &wh.Events, &wh.IsActive, &wh.CreatedBy, &wh.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert webhook: %w", err)
	}

	// Return secret only on creation
	wh.Secret = secret

	return &wh, nil
}

func (s *Service) List(ctx context.Context) ([]models.Webhook, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, url, events, is_active, created_by, created_at
		 FROM webhooks ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []models.Webhook
	for rows.Next() {
		var wh models.Webhook
		if err := rows.Scan(&wh.ID, &wh.URL, &wh.Events, &wh.IsActive, &wh.CreatedBy, &wh.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		webhooks = append(webhooks, wh)
	}
	return webhooks, rows.Err()
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM webhooks WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// Dispatch queues one delivery per active subscription to event.
func (s *Service) Dispatch(ctx context.Context, event string, payload interface{}) error {
	rows, err := s.db.Query(ctx,
		`SELECT id FROM webhooks WHERE is_active = true AND events @> $1::jsonb`,
		fmt.Sprintf(`["%s"]`, event),
	)
	if err != nil {
		return fmt.Errorf("find matching webhooks: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan webhook id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	for _, id := range ids {
		err := s.enqueuer.EnqueueWebhookDeliver(ctx, queue.WebhookDeliverPayload{
			WebhookID: id.String(),
			Event:     event,
			Payload:   string(payloadJSON),
		})
		if err != nil {
			slog.WarnContext(ctx, "failed to enqueue webhook delivery", "webhook_id", id, "event", event, "error", err)
		}
	}
	return nil
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(b), nil
}
