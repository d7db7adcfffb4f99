package database

import (
	"context"

	"modelhub-backend/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

func ConnectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisFullAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// AsynqRedisOpt points the queue client, server and inspector at the same redis.
func AsynqRedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisFullAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}
