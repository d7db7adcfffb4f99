package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"modelhub-backend/config"
	"modelhub-backend/internal/database"
	"modelhub-backend/internal/services"
	"modelhub-backend/internal/utils"
	"modelhub-backend/internal/worker"
	"modelhub-backend/pkg/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// cleanupSchedule runs common:cleanup_old_data once a day.
const cleanupSchedule = "@daily"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := logger.InitLogger(&logger.Config{
		Level:      cfg.LogLevel,
		Filename:   cfg.LogFilename,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
	}); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()
	zlog := logger.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg)
	if err != nil {
		zlog.Fatal("failed to connect database", zap.Error(err))
	}
	rdb, err := database.ConnectRedis(ctx, cfg)
	if err != nil {
		zlog.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	storage, err := services.NewStorage(cfg)
	if err != nil {
		zlog.Fatal("failed to init artifact storage", zap.Error(err))
	}

	redisOpt := database.AsynqRedisOpt(cfg)
	dispatcher := services.NewAsynqDispatcher(redisOpt, cfg.TaskResultTTL, worker.TaskOptions)
	defer dispatcher.Close()
	tasks := services.NewTaskService(db, services.NewTaskCache(rdb, cfg.TaskStatusTTL, cfg.TaskResultTTL), dispatcher, nil, zlog)

	registry := worker.NewRegistry(worker.NewRunner(tasks, cfg.TaskProgressInterval, zlog))
	err = worker.RegisterTasks(registry, worker.Deps{
		Tasks:      tasks,
		Models:     services.NewModelService(db, rdb, storage, cfg.ModelCacheTTL, zlog),
		Health:     services.NewHealthChecker(db, rdb, storage),
		HTTPClient: utils.NewHTTPClient(30*time.Second, zlog),
		WebhookURL: cfg.NotifyWebhookURL,
	})
	if err != nil {
		zlog.Fatal("failed to register tasks", zap.Error(err))
	}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: zlog.Named("scheduler").Sugar()})
	cleanup := asynq.NewTask(worker.TaskCleanup, []byte(`{"args":[],"kwargs":{}}`))
	opts := append(worker.TaskOptions(worker.TaskCleanup), asynq.Queue(services.QueueLowPriority))
	if _, err := scheduler.Register(cleanupSchedule, cleanup, opts...); err != nil {
		zlog.Fatal("failed to schedule cleanup", zap.Error(err))
	}
	if err := scheduler.Start(); err != nil {
		zlog.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer scheduler.Shutdown()

	srv := worker.NewServer(redisOpt, cfg.WorkerConcurrency, zlog)
	if err := srv.Start(registry.Mux()); err != nil {
		zlog.Fatal("failed to start worker", zap.Error(err))
	}
	zlog.Info("worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Strings("tasks", registry.Handlers()))

	<-ctx.Done()
	zlog.Info("shutdown signal received")
	srv.Shutdown()
	zlog.Info("worker stopped")
}
