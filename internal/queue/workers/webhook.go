package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/intranet/internal/queue"
)

type Deliverer interface {
	Deliver(ctx context.Context, webhookID uuid.UUID, event string, payload []byte) error
}

// WebhookWorker performs one delivery per task. A failed delivery returns an
// error so asynq retries it with backoff.
type WebhookWorker struct {
	deliverer Deliverer
}

func NewWebhookWorker(d Deliverer) *WebhookWorker {
	return &WebhookWorker{deliverer: d}
}

func (w *WebhookWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.WebhookDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	id, err := uuid.Parse(payload.WebhookID)
	if err != nil {
		return fmt.Errorf("parse webhook id: %w: %w", err, asynq.SkipRetry)
	}

	return w.deliverer.Deliver(ctx, id, payload.Event, []byte(payload.Payload))
}
