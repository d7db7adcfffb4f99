package services

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	ComponentDatabase = "database"
	ComponentRedis    = "redis"
	ComponentStorage  = "storage"
)

var DefaultHealthComponents = []string{ComponentDatabase, ComponentRedis, ComponentStorage}

// ComponentHealth is the outcome of probing one dependency.
type ComponentHealth struct {
	Status    string  `json:"status"`
	LatencyMS float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

func (c ComponentHealth) Healthy() bool { return c.Status == "healthy" }

// HealthChecker pings the process's backing services. Nil dependencies
// report unhealthy.
type HealthChecker struct {
	db      *gorm.DB
	rdb     *redis.Client
	storage Storage
}

func NewHealthChecker(db *gorm.DB, rdb *redis.Client, storage Storage) *HealthChecker {
	return &HealthChecker{db: db, rdb: rdb, storage: storage}
}

func (h *HealthChecker) Check(ctx context.Context, component string) ComponentHealth {
	start := time.Now()
	err := h.ping(ctx, component)
	out := ComponentHealth{Status: "healthy", LatencyMS: float64(time.Since(start).Microseconds()) / 1000}
	if err != nil {
		out.Status = "unhealthy"
		out.Error = err.Error()
	}
	return out
}

func (h *HealthChecker) ping(ctx context.Context, component string) error {
	switch component {
	case ComponentDatabase:
		if h.db == nil {
			return errors.New("database not configured")
		}
		sqlDB, err := h.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	case ComponentRedis:
		if h.rdb == nil {
			return errors.New("redis not configured")
		}
		return h.rdb.Ping(ctx).Err()
	case ComponentStorage:
		if h.storage == nil {
			return errors.New("storage not configured")
		}
		_, err := h.storage.Exists(ctx, ".healthcheck")
		return err
	default:
		return errors.New("unknown component")
	}
}

// CheckAll checks every component and reports whether all are healthy.
func (h *HealthChecker) CheckAll(ctx context.Context, components []string) (map[string]ComponentHealth, bool) {
	if len(components) == 0 {
		components = DefaultHealthComponents
	}
	out := make(map[string]ComponentHealth, len(components))
	ok := true
	for _, c := range components {
		res := h.Check(ctx, c)
		out[c] = res
		ok = ok && res.Healthy()
	}
	return out, ok
}
