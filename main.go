package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"modelhub-backend/config"
	"modelhub-backend/internal/api"
	"modelhub-backend/internal/database"
	"modelhub-backend/internal/monitor"
	"modelhub-backend/internal/services"
	"modelhub-backend/internal/worker"
	"modelhub-backend/pkg/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// @title modelhub-backend API
// @version 1.0
// @description Model management platform with tracked background tasks.
// @BasePath /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

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
	if err := database.AutoMigrate(db); err != nil {
		zlog.Fatal("failed to migrate database", zap.Error(err))
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

	users := services.NewUserService(db, rdb, zlog)
	apiKeys := services.NewAPIKeyService(db, zlog)
	tasks := services.NewTaskService(db, services.NewTaskCache(rdb, cfg.TaskStatusTTL, cfg.TaskResultTTL), dispatcher, nil, zlog)
	modelService := services.NewModelService(db, rdb, storage, cfg.ModelCacheTTL, zlog)
	authService := services.NewAuthService(users, apiKeys, services.NewTokenDenylist(rdb), zlog)

	if err := users.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		zlog.Fatal("failed to bootstrap admin user", zap.Error(err))
	}

	poller := services.NewStatusPoller(tasks, cfg.TaskSyncInterval, zlog)
	poller.Start(ctx)
	defer poller.Stop()

	active := services.NewActiveUsers(cfg.ActiveUserWindow)
	active.Start(ctx, time.Minute)
	defer active.Stop()

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	pool := monitor.NewPoolMonitor(inspector, monitor.NewSystemSampler(), cfg.WorkerMonitorInterval, zlog)
	pool.Start(ctx)
	defer pool.Stop()

	router := api.NewRouter(api.Deps{
		Logger:       zlog,
		CORSOrigins:  cfg.CORSOrigins,
		APIKeyHeader: cfg.APIKeyHeader,
		Auth:         authService,
		Users:        users,
		APIKeys:      apiKeys,
		Tasks:        tasks,
		Models:       modelService,
		Health:       services.NewHealthChecker(db, rdb, storage),
		ActiveUsers:  active,
		Pool:         pool,
		Uploads:      services.NewSTSIssuer(cfg),
	})

	server := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: router,
	}
	go func() {
		zlog.Info("api server listening", zap.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("api server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("api server shutdown failed", zap.Error(err))
	}
	zlog.Info("api server stopped")
}
