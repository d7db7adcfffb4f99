package services

import (
	"context"
	"testing"
	"time"

	"modelhub-backend/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func sampleTask() *models.Task {
	owner := "user-1"
	handle := "default:abc"
	started := time.Date(2024, 5, 1, 10, 0, 1, 500, time.UTC)
	return &models.Task{
		ID:             "task-1",
		Name:           "resize images",
		TaskType:       "batch",
		Status:         models.TaskStatusRunning,
		Priority:       models.TaskPriorityHigh,
		DispatchTarget: "common:batch_process_items",
		DispatchID:     &handle,
		Queue:          QueueHighPriority,
		Args:           datatypes.JSON(`[1,2]`),
		Kwargs:         datatypes.JSON(`{"batch_size":10}`),
		Result:         datatypes.JSON(`{"processed":5,"nested":{"ok":true}}`),
		Progress:       40,
		CreatedAt:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		StartedAt:      &started,
		UserID:         &owner,
	}
}

func TestTaskCacheRoundTrip(t *testing.T) {
	_, rdb := setupTestRedis(t)
	cache := NewTaskCache(rdb, time.Hour, 2*time.Hour)
	ctx := context.Background()

	task := sampleTask()
	require.NoError(t, cache.Put(ctx, task))

	got, err := cache.Get(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, task.Status, got.Status)
	assert.Equal(t, task.Priority, got.Priority)
	assert.Equal(t, task.Progress, got.Progress)
	assert.Equal(t, *task.DispatchID, *got.DispatchID)
	assert.Equal(t, *task.UserID, *got.UserID)
	assert.Nil(t, got.ModelID)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.Error)
	assert.True(t, task.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, task.StartedAt.Equal(*got.StartedAt))
	assert.JSONEq(t, string(task.Result), string(got.Result))
	assert.JSONEq(t, string(task.Args), string(got.Args))
}

func TestTaskCacheTTL(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	cache := NewTaskCache(rdb, time.Hour, 2*time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, sampleTask()))
	require.NoError(t, cache.PutResult(ctx, "task-1", map[string]int{"n": 1}))

	assert.Equal(t, time.Hour, mr.TTL("task:task-1:status"))
	assert.Equal(t, 2*time.Hour, mr.TTL("task:task-1:result"))

	mr.FastForward(61 * time.Minute)
	got, err := cache.Get(ctx, "task-1")
	assert.NoError(t, err)
	assert.Nil(t, got)

	raw, err := cache.GetResult(ctx, "task-1")
	assert.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(raw))
}

func TestTaskCachePartialWriteIsMiss(t *testing.T) {
	_, rdb := setupTestRedis(t)
	cache := NewTaskCache(rdb, time.Hour, time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.PutFields(ctx, "task-2", map[string]interface{}{
		"status":   string(models.TaskStatusRunning),
		"progress": "30",
	}))

	got, err := cache.Get(ctx, "task-2")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestTaskCacheInvalidate(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	cache := NewTaskCache(rdb, time.Hour, time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, sampleTask()))
	require.NoError(t, cache.PutResult(ctx, "task-1", "done"))
	require.NoError(t, cache.Invalidate(ctx, "task-1"))

	assert.False(t, mr.Exists("task:task-1:status"))
	assert.False(t, mr.Exists("task:task-1:result"))
}
