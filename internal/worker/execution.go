package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"modelhub-backend/internal/models"
	"modelhub-backend/internal/services"
	"modelhub-backend/pkg/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const DefaultProgressInterval = 5 * time.Second

// HandlerFunc is the body of a worker task. Its return value becomes the
// task result.
type HandlerFunc func(ctx context.Context, exec *Execution) (interface{}, error)

// Runner wraps task bodies with status bookkeeping against the task record
// named by kwargs["task_id"].
type Runner struct {
	tasks            *services.TaskService
	logger           *zap.Logger
	progressInterval time.Duration
	now              func() time.Time
	retryInfo        func(ctx context.Context) (retried, maxRetry int, ok bool)
}

func NewRunner(tasks *services.TaskService, progressInterval time.Duration, log *zap.Logger) *Runner {
	if progressInterval <= 0 {
		progressInterval = DefaultProgressInterval
	}
	return &Runner{
		tasks:            tasks,
		logger:           logger.OrGlobal(log).Named("worker"),
		progressInterval: progressInterval,
		now:              time.Now,
		retryInfo:        asynqRetryInfo,
	}
}

func asynqRetryInfo(ctx context.Context) (int, int, bool) {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return 0, 0, false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return retried, maxRetry, ok
}

// Execution is the per-run state handed to a HandlerFunc.
type Execution struct {
	TaskID string
	Name   string
	Args   []interface{}
	Kwargs map[string]interface{}

	runner     *Runner
	ctx        context.Context // status writes outlive cancellation of the run
	writer     *asynq.ResultWriter
	log        *zap.Logger
	started    time.Time
	lastUpdate time.Time
	dbOps      int
	dbTime     time.Duration
}

// Wrap adapts fn into an asynq handler for the task type name.
func (r *Runner) Wrap(name string, fn HandlerFunc) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		var payload services.TaskPayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return fmt.Errorf("decode %s payload: %v: %w", name, err, asynq.SkipRetry)
			}
		}
		return r.Run(ctx, name, payload, t.ResultWriter(), fn)
	})
}

// Run executes fn with the before/success/failure hooks. writer may be nil.
func (r *Runner) Run(ctx context.Context, name string, payload services.TaskPayload, writer *asynq.ResultWriter, fn HandlerFunc) (err error) {
	exec := &Execution{
		Name:   name,
		Args:   payload.Args,
		Kwargs: payload.Kwargs,
		runner: r,
		ctx:    context.WithoutCancel(ctx),
		writer: writer,
	}
	if exec.Kwargs == nil {
		exec.Kwargs = map[string]interface{}{}
	}
	if id, ok := exec.Kwargs["task_id"].(string); ok {
		exec.TaskID = id
	}
	exec.log = r.logger.With(zap.String("task", name), zap.String("task_id", exec.TaskID))

	if errors.Is(r.beforeStart(exec), services.ErrTaskTerminal) {
		// Revoked while still queued.
		exec.log.Info("skipping finished task")
		return nil
	}

	var result interface{}
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = &panicError{value: p, stack: debug.Stack()}
			}
		}()
		result, err = fn(ctx, exec)
	}()

	if err != nil {
		return r.onFailure(exec, err)
	}
	r.onSuccess(exec, result)
	return nil
}

func (r *Runner) beforeStart(e *Execution) error {
	e.started = r.now()
	e.lastUpdate = e.started
	e.log.Info("task started")
	e.writeMeta(map[string]interface{}{"progress": 0})
	_, err := e.persist(services.TaskStatusUpdate{
		Status:   models.TaskStatusRunning,
		Progress: intPtr(0),
		Result:   map[string]interface{}{"status": "started", "message": fmt.Sprintf("task %s started", e.Name)},
	})
	return err
}

func (r *Runner) onSuccess(e *Execution, result interface{}) {
	if result != nil {
		if raw, err := json.Marshal(result); err == nil && e.writer != nil {
			_, _ = e.writer.Write(raw)
		}
	}
	_, _ = e.persist(services.TaskStatusUpdate{
		Status:   models.TaskStatusSucceeded,
		Progress: intPtr(100),
		Result:   result,
	})
	if e.TaskID != "" && result != nil {
		if err := r.tasks.Cache().PutResult(e.ctx, e.TaskID, result); err != nil {
			e.log.Warn("result cache write failed", zap.Error(err))
		}
	}
	e.log.Info("task succeeded", e.metrics()...)
}

// onFailure records the error and returns what asynq should see.
func (r *Runner) onFailure(e *Execution, cause error) error {
	info := map[string]interface{}{
		"message":   cause.Error(),
		"traceback": traceback(cause),
		"time":      r.now().UTC().Format(time.RFC3339Nano),
	}

	status := models.TaskStatusFailed
	retryable := !errors.Is(cause, asynq.SkipRetry) && !errors.Is(cause, context.DeadlineExceeded)
	if retried, maxRetry, ok := r.retryInfo(e.ctx); ok && retryable && retried < maxRetry {
		status = models.TaskStatusPending
		info["retry_count"] = retried + 1
		info["max_retries"] = maxRetry
	}

	_, err := e.persist(services.TaskStatusUpdate{Status: status, Error: info})
	fields := append(e.metrics(), zap.String("status", string(status)), zap.Error(cause))
	e.log.Error("task failed", fields...)

	if errors.Is(err, services.ErrTaskTerminal) || errors.Is(cause, context.DeadlineExceeded) {
		return fmt.Errorf("%v: %w", cause, asynq.SkipRetry)
	}
	return cause
}

// UpdateProgress reports intermediate progress. Calls closer together than
// the runner's interval (measured from the previous write or task start)
// are dropped; the return value says whether the write happened.
func (e *Execution) UpdateProgress(progress int, partial interface{}) bool {
	return e.updateProgress(progress, partial, false)
}

func (e *Execution) updateProgress(progress int, partial interface{}, force bool) bool {
	now := e.runner.now()
	if !force && now.Sub(e.lastUpdate) < e.runner.progressInterval {
		return false
	}
	e.lastUpdate = now

	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	elapsed := now.Sub(e.started).Seconds()
	data := map[string]interface{}{
		"progress": progress,
		"time":     now.UTC().Format(time.RFC3339Nano),
		"elapsed":  elapsed,
	}
	if partial != nil {
		if m, ok := partial.(map[string]interface{}); ok {
			for k, v := range m {
				data[k] = v
			}
		} else {
			data["data"] = partial
		}
	}

	e.writeMeta(data)
	_, _ = e.persist(services.TaskStatusUpdate{
		Status:   models.TaskStatusRunning,
		Progress: &progress,
		Result:   data,
	})
	e.log.Debug("task progress", zap.Int("progress", progress), zap.Float64("elapsed", elapsed))
	return true
}

// persist writes the durable record, which refreshes the cache mirror. If
// the database write fails the mirror still receives the status fields so
// pollers keep seeing progress. Errors other than ErrTaskTerminal are
// logged and swallowed.
func (e *Execution) persist(upd services.TaskStatusUpdate) (*models.Task, error) {
	if e.TaskID == "" {
		return nil, nil
	}
	start := e.runner.now()
	defer func() {
		e.dbOps++
		e.dbTime += e.runner.now().Sub(start)
	}()

	fields := map[string]interface{}{"status": string(upd.Status)}
	if upd.Progress != nil {
		fields["progress"] = *upd.Progress
	}
	current, err := e.runner.tasks.UpdateTaskStatus(e.ctx, e.TaskID, upd)
	if errors.Is(err, services.ErrTaskTerminal) {
		e.log.Debug("ignoring write to finished task", zap.String("status", string(upd.Status)))
		return current, err
	}
	if err != nil {
		if cacheErr := e.runner.tasks.Cache().PutFields(e.ctx, e.TaskID, fields); cacheErr != nil {
			e.log.Warn("task cache write failed", zap.Error(cacheErr))
		}
		e.log.Error("task status write failed", zap.String("status", string(upd.Status)), zap.Error(err))
		return nil, nil
	}
	return current, nil
}

func (e *Execution) writeMeta(v interface{}) {
	if e.writer == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if _, err := e.writer.Write(raw); err != nil {
		e.log.Debug("result writer failed", zap.Error(err))
	}
}

func (e *Execution) metrics() []zap.Field {
	return []zap.Field{
		zap.Duration("total_time", e.runner.now().Sub(e.started)),
		zap.Duration("db_time", e.dbTime),
		zap.Int("db_operations", e.dbOps),
	}
}

// DBOperations reports how many status writes this run made.
func (e *Execution) DBOperations() int {
	return e.dbOps
}

type panicError struct {
	value interface{}
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

func traceback(err error) string {
	var p *panicError
	if errors.As(err, &p) {
		return string(p.stack)
	}
	return fmt.Sprintf("%+v", err)
}

func intPtr(i int) *int { return &i }
