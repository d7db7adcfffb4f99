package worker

import (
	"context"
	"time"

	"modelhub-backend/internal/services"
	"modelhub-backend/pkg/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// NewServer builds the asynq server that drains the weighted task queues.
func NewServer(redisOpt asynq.RedisConnOpt, concurrency int, log *zap.Logger) *asynq.Server {
	log = logger.OrGlobal(log).Named("asynq")
	if concurrency <= 0 {
		concurrency = 10
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     concurrency,
		Queues:          services.QueueWeights,
		RetryDelayFunc:  RetryDelay,
		ShutdownTimeout: shutdownTimeout,
		Logger:          log.Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.Warn("task attempt failed",
				zap.String("type", task.Type()),
				zap.Int("retried", retried),
				zap.Int("max_retry", maxRetry),
				zap.Error(err))
		}),
	})
}
