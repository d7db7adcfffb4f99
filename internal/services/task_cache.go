package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"modelhub-backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
)

const (
	DefaultTaskStatusTTL = 72 * time.Hour
	DefaultTaskResultTTL = 7 * 24 * time.Hour
)

func taskStatusKey(id string) string { return fmt.Sprintf("task:%s:status", id) }
func taskResultKey(id string) string { return fmt.Sprintf("task:%s:result", id) }

// TaskCache mirrors task records into redis hashes for fast status reads.
// Entries are best-effort: a miss always falls back to the database.
type TaskCache struct {
	rdb       *redis.Client
	statusTTL time.Duration
	resultTTL time.Duration
}

func NewTaskCache(rdb *redis.Client, statusTTL, resultTTL time.Duration) *TaskCache {
	if statusTTL <= 0 {
		statusTTL = DefaultTaskStatusTTL
	}
	if resultTTL <= 0 {
		resultTTL = DefaultTaskResultTTL
	}
	return &TaskCache{rdb: rdb, statusTTL: statusTTL, resultTTL: resultTTL}
}

// Put writes every attribute of task and refreshes the status TTL.
func (c *TaskCache) Put(ctx context.Context, task *models.Task) error {
	return c.PutFields(ctx, task.ID, encodeTaskFields(task))
}

// PutFields writes a partial hash. Used by workers for low-latency progress.
func (c *TaskCache) PutFields(ctx context.Context, id string, fields map[string]interface{}) error {
	key := taskStatusKey(id)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, c.statusTTL)
		return nil
	})
	return err
}

// Get returns the cached record, or (nil, nil) on a miss. Hashes that only
// hold a partial worker write count as a miss.
func (c *TaskCache) Get(ctx context.Context, id string) (*models.Task, error) {
	fields, err := c.rdb.HGetAll(ctx, taskStatusKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if fields["id"] == "" || fields["name"] == "" {
		return nil, nil
	}
	task, err := decodeTaskFields(fields)
	if err != nil {
		return nil, nil
	}
	return task, nil
}

func (c *TaskCache) PutResult(ctx context.Context, id string, result interface{}) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, taskResultKey(id), raw, c.resultTTL).Err()
}

// GetResult returns the raw cached result, or nil when absent.
func (c *TaskCache) GetResult(ctx context.Context, id string) (json.RawMessage, error) {
	raw, err := c.rdb.Get(ctx, taskResultKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *TaskCache) Invalidate(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, taskStatusKey(id), taskResultKey(id)).Err()
}

func encodeTaskFields(t *models.Task) map[string]interface{} {
	return map[string]interface{}{
		"id":              t.ID,
		"name":            t.Name,
		"task_type":       t.TaskType,
		"status":          string(t.Status),
		"priority":        strconv.Itoa(int(t.Priority)),
		"progress":        strconv.Itoa(t.Progress),
		"dispatch_target": t.DispatchTarget,
		"dispatch_id":     strPtr(t.DispatchID),
		"queue":           t.Queue,
		"args":            string(t.Args),
		"kwargs":          string(t.Kwargs),
		"result":          string(t.Result),
		"error":           string(t.Error),
		"user_id":         strPtr(t.UserID),
		"model_id":        strPtr(t.ModelID),
		"created_at":      timeString(&t.CreatedAt),
		"started_at":      timeString(t.StartedAt),
		"completed_at":    timeString(t.CompletedAt),
	}
}

func decodeTaskFields(f map[string]string) (*models.Task, error) {
	status, err := models.ParseTaskStatus(f["status"])
	if err != nil {
		return nil, err
	}
	priority, err := strconv.Atoi(f["priority"])
	if err != nil {
		return nil, err
	}
	progress, err := strconv.Atoi(f["progress"])
	if err != nil {
		return nil, err
	}
	created, err := parseTime(f["created_at"])
	if err != nil || created == nil {
		return nil, fmt.Errorf("bad created_at %q", f["created_at"])
	}
	started, err := parseTime(f["started_at"])
	if err != nil {
		return nil, err
	}
	completed, err := parseTime(f["completed_at"])
	if err != nil {
		return nil, err
	}

	return &models.Task{
		ID:             f["id"],
		Name:           f["name"],
		TaskType:       f["task_type"],
		Status:         status,
		Priority:       models.TaskPriority(priority),
		Progress:       progress,
		DispatchTarget: f["dispatch_target"],
		DispatchID:     ptrStr(f["dispatch_id"]),
		Queue:          f["queue"],
		Args:           jsonField(f["args"]),
		Kwargs:         jsonField(f["kwargs"]),
		Result:         jsonField(f["result"]),
		Error:          jsonField(f["error"]),
		UserID:         ptrStr(f["user_id"]),
		ModelID:        ptrStr(f["model_id"]),
		CreatedAt:      *created,
		StartedAt:      started,
		CompletedAt:    completed,
	}, nil
}

func strPtr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptrStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timeString(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func jsonField(s string) datatypes.JSON {
	if s == "" {
		return nil
	}
	return datatypes.JSON(s)
}
