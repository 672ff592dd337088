package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/intranet/internal/api"
	"github.com/nikhilbhutani/intranet/internal/config"
	"github.com/nikhilbhutani/intranet/internal/database"
	"github.com/nikhilbhutani/intranet/internal/metrics"
	"github.com/nikhilbhutani/intranet/internal/queue"
	"github.com/nikhilbhutani/intranet/internal/queue/workers"
	"github.com/nikhilbhutani/intranet/internal/webhook"
)

func main() {
	migrateOnly := flag.Bool("migrate-rbac", false, "run the RBAC migration once and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		slog.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	qc := queue.NewClient(cfg.Redis)
	defer qc.Close()

	services := api.NewServices(db, rdb, qc, cfg, metrics.New())

	if *migrateOnly {
		result, err := services.RBAC.MigrateRBAC(ctx, nil)
		if err != nil {
			slog.Error("rbac migration failed", "error", err)
			os.Exit(1)
		}
		slog.Info("rbac migration complete",
			"permissions", result.PermissionsCount,
			"roles", result.RolesCount,
			"users_migrated", result.UsersMigrated,
		)
		return
	}

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	registry := queue.NewHandlersRegistry()
	registry.Register(queue.TypeCertificateIssued, workers.NewCertificateWorker(services.Webhooks, webhook.EventCertificateIssued))
	registry.Register(queue.TypeRBACMigrate, workers.NewRBACWorker(services.RBAC))
	registry.Register(queue.TypeWebhookDeliver, workers.NewWebhookWorker(services.Dispatcher))

	slog.Info("starting worker", "concurrency", cfg.Worker.Concurrency)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}
