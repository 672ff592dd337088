package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TaskProcessor is implemented by every worker.
type TaskProcessor interface {
	ProcessTask(ctx context.Context, t *asynq.Task) error
}

type HandlersRegistry struct {
	mux *asynq.ServeMux
}

func NewHandlersRegistry() *HandlersRegistry {
	mux := asynq.NewServeMux()
	mux.Use(logTask)
	return &HandlersRegistry{mux: mux}
}

func (r *HandlersRegistry) Register(taskType string, p TaskProcessor) {
	r.mux.Handle(taskType, asynq.HandlerFunc(p.ProcessTask))
}

func (r *HandlersRegistry) Mux() *asynq.ServeMux {
	return r.mux
}

func logTask(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, t)
		if err != nil {
			slog.ErrorContext(ctx, "task failed", "type", t.Type(), "duration_ms", time.Since(start).Milliseconds(), "error", err)
			return err
		}
		slog.InfoContext(ctx, "task done", "type", t.Type(), "duration_ms", time.Since(start).Milliseconds())
		return nil
	})
}
