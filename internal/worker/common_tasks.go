package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"modelhub-backend/internal/services"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	maxLongRunningSeconds = 3600
	itemBatchSize         = 50
	defaultCleanupDays    = 30
)

// longRunning advances one step per Deps.Step and reports progress each step.
func longRunning(deps Deps) HandlerFunc {
	return func(ctx context.Context, e *Execution) (interface{}, error) {
		steps := e.IntArg(0, "seconds", 10)
		if steps < 1 {
			steps = 1
		}
		if steps > maxLongRunningSeconds {
			steps = maxLongRunningSeconds
		}
		e.log.Info("long running task", zap.Int("steps", steps))

		start := e.runner.now()
		for i := 0; i < steps; i++ {
			e.UpdateProgress((i+1)*100/steps, map[string]interface{}{
				"current_step": i + 1,
				"total_steps":  steps,
				"message":      fmt.Sprintf("processing step %d/%d", i+1, steps),
			})
			if err := sleepCtx(ctx, deps.Step); err != nil {
				return nil, err
			}
		}

		return map[string]interface{}{
			"message":         fmt.Sprintf("completed %d steps", steps),
			"duration":        e.runner.now().Sub(start).Seconds(),
			"steps_processed": steps,
		}, nil
	}
}

func batchProcessItems(deps Deps) HandlerFunc {
	return func(ctx context.Context, e *Execution) (interface{}, error) {
		items := e.ListArg(0, "items")
		result := e.BatchProcess(items, func(item interface{}, index int) (interface{}, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return map[string]interface{}{"index": index, "value": item, "processed": true}, nil
		}, itemBatchSize)
		e.log.Info("batch finished", zap.Stringer("result", result))
		return result, nil
	}
}

// sendNotification posts to the configured webhook. Without one the
// notification is only logged.
func sendNotification(deps Deps) HandlerFunc {
	return func(ctx context.Context, e *Execution) (interface{}, error) {
		notification := map[string]interface{}{
			"user_id": e.StringArg(0, "user_id", ""),
			"message": e.StringArg(1, "message", ""),
			"type":    e.StringArg(2, "notification_type", "info"),
		}
		if notification["user_id"] == "" || notification["message"] == "" {
			return nil, fmt.Errorf("user_id and message are required: %w", asynq.SkipRetry)
		}

		delivered := false
		if deps.WebhookURL != "" {
			if err := postWebhook(ctx, deps, notification); err != nil {
				return nil, err
			}
			delivered = true
		} else {
			e.log.Info("notification", zap.Any("notification", notification))
		}

		notification["success"] = true
		notification["delivered"] = delivered
		notification["sent_at"] = e.runner.now().UTC().Format(time.RFC3339)
		return notification, nil
	}
}

// postWebhook delivers payload to Deps.WebhookURL. 4xx answers are not retried.
func postWebhook(ctx context.Context, deps Deps, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, deps.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %v: %w", err, asynq.SkipRetry)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := deps.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	resp.Body.Close()
	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("webhook rejected notification with %d: %w", resp.StatusCode, asynq.SkipRetry)
	}
	return nil
}

// cleanupOldData removes finished task records older than the given number of days.
func cleanupOldData(deps Deps) HandlerFunc {
	return func(ctx context.Context, e *Execution) (interface{}, error) {
		days := e.IntArg(0, "days", defaultCleanupDays)
		if days < 1 {
			days = 1
		}
		e.UpdateProgress(10, map[string]interface{}{"message": "starting cleanup"})

		cutoff := e.runner.now().Add(-time.Duration(days) * 24 * time.Hour)
		deleted, err := deps.Tasks.CleanupFinished(ctx, cutoff)
		if err != nil {
			return nil, fmt.Errorf("delete old task records: %w", err)
		}
		e.UpdateProgress(50, map[string]interface{}{"message": "removed finished task records", "records_deleted": deleted})

		remaining, err := deps.Tasks.GetTaskCount(ctx, services.TaskFilter{})
		if err != nil {
			return nil, err
		}
		e.UpdateProgress(80, map[string]interface{}{"message": "counted remaining records"})

		result := map[string]interface{}{
			"message":           fmt.Sprintf("cleaned data older than %d days", days),
			"days_cleaned":      days,
			"cutoff":            cutoff.UTC().Format(time.RFC3339),
			"records_deleted":   deleted,
			"records_remaining": remaining["total"],
		}
		e.updateProgress(100, result, true)
		e.log.Info("cleanup finished", zap.Int64("records_deleted", deleted))
		return result, nil
	}
}
