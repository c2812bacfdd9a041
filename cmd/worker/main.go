// Package main runs the standalone session activity worker (Redis queue to Postgres).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trivia-app/backend/config"
	"github.com/trivia-app/backend/internal/models"
	"github.com/trivia-app/backend/internal/sessionlog"
	"github.com/trivia-app/backend/internal/tenant"
	"github.com/trivia-app/backend/internal/worker"
	"github.com/trivia-app/backend/pkg/database"
	"github.com/trivia-app/backend/pkg/queue"
	"github.com/trivia-app/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.LoadWorker()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	store, err := sessionlog.NewStore(pool)
	if err != nil {
		logger.Fatal("session log store", zap.Error(err))
	}
	jobQueue := queue.NewQueue(rdb.Client, logger, queue.WithPollTimeout(cfg.Worker.PollTimeout))
	recorder := worker.NewActivityRecorder(tenant.NewGuard[*models.Participation](store), jobQueue, logger)
	recorder.SetBackoff(cfg.Worker.RetryBackoff)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		recorder.Run(workerCtx)
	}()
	logger.Info("worker started", zap.String("queue", queue.QueueSessionActivity))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	<-done
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
