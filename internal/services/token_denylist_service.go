package services

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const denylistPrefix = "denylist:"

// TokenDenylist remembers logged-out tokens until they would have expired.
type TokenDenylist struct {
	rdb *redis.Client
}

func NewTokenDenylist(rdb *redis.Client) *TokenDenylist {
	return &TokenDenylist{rdb: rdb}
}

func (d *TokenDenylist) Add(ctx context.Context, tokenString string, expiration time.Duration) error {
	if expiration <= 0 {
		return nil
	}
	return d.rdb.Set(ctx, denylistPrefix+tokenString, 1, expiration).Err()
}

func (d *TokenDenylist) Contains(ctx context.Context, tokenString string) (bool, error) {
	val, err := d.rdb.Get(ctx, denylistPrefix+tokenString).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val != "", nil
}
