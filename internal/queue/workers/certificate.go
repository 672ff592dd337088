package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/intranet/internal/queue"
)

// EventDispatcher fans an event out to webhook subscribers.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event string, payload interface{}) error
}

type CertificateWorker struct {
	events EventDispatcher
	event  string
}

func NewCertificateWorker(events EventDispatcher, event string) *CertificateWorker {
	return &CertificateWorker{events: events, event: event}
}

func (w *CertificateWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.CertificateIssuedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	slog.InfoContext(ctx, "announcing certificate",
		"certificate_id", payload.CertificateID, "user_id", payload.UserID, "course_id", payload.CourseID)

	if err := w.events.Dispatch(ctx, w.event, payload); err != nil {
		return fmt.Errorf("dispatch %s: %w", w.event, err)
	}
	return nil
}
