package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"attendtrack/internal/audit"
	"attendtrack/internal/config"
	"attendtrack/internal/queue"
	"attendtrack/internal/store"
)

// Worker drains the audit queue into Postgres.
func main() {
	cfg := config.MustLoad()
	logger := config.NewLogger(cfg.Env).With("component", "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend != "redis" {
		logger.Error("worker needs QUEUE_BACKEND=redis; the memory queue is drained inside the api process")
		os.Exit(1)
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		logger.Error("ensure schema failed", "err", err)
		os.Exit(1)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet, consumer will keep retrying")
	}

	consumer := audit.NewConsumer(queue.NewRedisQueue(redisClient.Client, ""), audit.NewRepository(db.Client), logger)

	logger.Info("worker started, waiting for audit events")
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
