package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Dispatcher performs signed deliveries and records each try.
type Dispatcher struct {
	db         *pgxpool.Pool
	httpClient *http.Client
}

type DeliveryRequest struct {
	WebhookID uuid.UUID
	URL       string
	Secret    string
	Event     string
	Payload   []byte
}

func NewDispatcher(db *pgxpool.Pool, client *http.Client) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Dispatcher{db: db, httpClient: client}
}

// Deliver looks up the subscription and posts payload to it. Inactive or
// deleted subscriptions are skipped. A transport error or a 5xx response is
// returned so the caller can retry.
func (d *Dispatcher) Deliver(ctx context.Context, webhookID uuid.UUID, event string, payload []byte) error {
	req := DeliveryRequest{WebhookID: webhookID, Event: event, Payload: payload}
	var active bool
	err := d.db.QueryRow(ctx, `SELECT url, secret, is_active FROM webhooks WHERE id = $1`, webhookID).
		Scan(&req.URL, &req.Secret, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		slog.InfoContext(ctx, "webhook gone, skipping delivery", "webhook_id", webhookID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load webhook: %w", err)
	}
	if !active {
		return nil
	}

	status, err := d.Send(ctx, req)
	d.recordDelivery(ctx, req, status, err)
	if err != nil {
		return err
	}
	if status >= 500 {
		return fmt.Errorf("webhook %s responded %d", webhookID, status)
	}
	if status >= 400 {
		slog.WarnContext(ctx, "webhook received non-success response", "status", status, "webhook_id", webhookID)
	}
	return nil
}

// Send posts a single signed request and returns the response status.
func (d *Dispatcher) Send(ctx context.Context, req DeliveryRequest) (int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Payload))
	if err != nil {
		return 0, fmt.Errorf("build webhook request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Webhook-Event", req.Event)
	httpReq.Header.Set("X-Webhook-Signature", Sign(req.Payload, req.Secret))
	httpReq.Header.Set("X-Webhook-ID", req.WebhookID.String())

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func (d *Dispatcher) recordDelivery(ctx context.Context, req DeliveryRequest, status int, deliveryErr error) {
	var deliveredAt *time.Time
	if deliveryErr == nil && status < 400 {
		now := time.Now()
		deliveredAt = &now
	}

	_, err := d.db.Exec(ctx,
		`INSERT INTO webhook_deliveries (webhook_id, event, payload, response_status, attempts, delivered_at)
		 VALUES ($1, $2, $3, $4, 1, $5)`,
		req.WebhookID, req.Event, req.Payload, status, deliveredAt,
	)
	if err != nil {
		slog.ErrorContext(ctx, "failed to record webhook delivery", "error", err)
	}
}

// Sign returns the X-Webhook-Signature value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}
