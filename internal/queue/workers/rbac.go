package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/intranet/internal/models"
	"github.com/nikhilbhutani/intranet/internal/queue"
)

type Migrator interface {
	MigrateRBAC(ctx context.Context, actorID *uuid.UUID) (*models.MigrationResult, error)
}

// RBACWorker runs queued migrations. The migrator announces the result
// itself.
type RBACWorker struct {
	migrator Migrator
}

func NewRBACWorker(migrator Migrator) *RBACWorker {
	return &RBACWorker{migrator: migrator}
}

func (w *RBACWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.RBACMigratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	var actorID *uuid.UUID
	if payload.RequestedBy != "" {
		id, err := uuid.Parse(payload.RequestedBy)
		if err != nil {
			return fmt.Errorf("parse requested_by: %w: %w", err, asynq.SkipRetry)
		}
		actorID = &id
	}

	result, err := w.migrator.MigrateRBAC(ctx, actorID)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "rbac migration task done", "users_migrated", result.UsersMigrated)
	return nil
}
