package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"modelhub-backend/internal/models"
	"modelhub-backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrTaskTerminal   = errors.New("task already finished")
	ErrDispatchFailed = errors.New("failed to dispatch task")
)

const (
	DefaultTaskListLimit = 100
	MaxTaskListLimit     = 500
)

// sortableTaskColumns guards order_by against arbitrary SQL.
var sortableTaskColumns = map[string]bool{
	"created_at":   true,
	"started_at":   true,
	"completed_at": true,
	"status":       true,
	"progress":     true,
	"priority":     true,
	"name":         true,
	"task_type":    true,
}

// CreateTaskParams describes a task submission.
type CreateTaskParams struct {
	Name           string
	TaskType       string
	DispatchTarget string
	Args           []interface{}
	Kwargs         map[string]interface{}
	Priority       models.TaskPriority
	UserID         *string
	ModelID        *string
}

// TaskFilter narrows GetTasks and GetTaskCount. Empty fields do not filter.
type TaskFilter struct {
	UserID   string
	ModelID  string
	Status   models.TaskStatus
	TaskType string
	Skip     int
	Limit    int
	OrderBy  string
	OrderAsc bool
}

// TaskStatusUpdate carries one status write. Nil Progress, Result and Error
// leave the stored value unchanged.
type TaskStatusUpdate struct {
	Status   models.TaskStatus
	Progress *int
	Result   interface{}
	Error    interface{}
}

// TaskService owns task records: persistence, cache mirroring and dispatch.
type TaskService struct {
	db         *gorm.DB
	cache      *TaskCache
	dispatcher Dispatcher
	router     *QueueRouter
	logger     *zap.Logger
	now        func() time.Time
}

func NewTaskService(db *gorm.DB, cache *TaskCache, dispatcher Dispatcher, router *QueueRouter, log *zap.Logger) *TaskService {
	if router == nil {
		router = DefaultQueueRouter()
	}
	return &TaskService{
		db:         db,
		cache:      cache,
		dispatcher: dispatcher,
		router:     router,
		logger:     logger.OrGlobal(log).Named("tasks"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Cache exposes the mirror so workers can write partial progress directly.
func (s *TaskService) Cache() *TaskCache {
	return s.cache
}

// CreateTask persists a PENDING record and hands it to the dispatcher. When
// dispatch fails the record is still returned, along with an error wrapping
// ErrDispatchFailed.
func (s *TaskService) CreateTask(ctx context.Context, p CreateTaskParams) (*models.Task, error) {
	if p.Priority == 0 {
		p.Priority = models.TaskPriorityNormal
	}
	if p.Args == nil {
		p.Args = []interface{}{}
	}
	if p.Kwargs == nil {
		p.Kwargs = map[string]interface{}{}
	}
	args, err := marshalJSON(p.Args)
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}
	kwargs, err := marshalJSON(p.Kwargs)
	if err != nil {
		return nil, fmt.Errorf("encode kwargs: %w", err)
	}

	task := &models.Task{
		Name:           p.Name,
		TaskType:       p.TaskType,
		Status:         models.TaskStatusPending,
		Priority:       p.Priority,
		DispatchTarget: p.DispatchTarget,
		Queue:          s.router.Select(p.TaskType, p.Priority),
		Args:           args,
		Kwargs:         kwargs,
		CreatedAt:      s.now(),
		UserID:         p.UserID,
		ModelID:        p.ModelID,
	}
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, err
	}

	// Workers find their record through kwargs["task_id"].
	dispatchKwargs := make(map[string]interface{}, len(p.Kwargs)+1)
	for k, v := range p.Kwargs {
		dispatchKwargs[k] = v
	}
	dispatchKwargs["task_id"] = task.ID

	handle, dispatchErr := s.dispatcher.Enqueue(ctx, p.DispatchTarget, p.Args, dispatchKwargs, task.Queue)
	if dispatchErr == nil {
		task.DispatchID = &handle
		if err := s.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", task.ID).Update("dispatch_id", handle).Error; err != nil {
			return nil, err
		}
	}

	// A worker may already have moved the record past PENDING.
	if fresh, err := s.load(ctx, task.ID); err == nil {
		task = fresh
	} else {
		s.logger.Warn("task reload after dispatch failed", zap.String("task_id", task.ID), zap.Error(err))
	}
	s.mirror(ctx, task)

	if dispatchErr != nil {
		s.logger.Error("task dispatch failed",
			zap.String("task_id", task.ID),
			zap.String("target", p.DispatchTarget),
			zap.String("queue", task.Queue),
			zap.Error(dispatchErr))
		return task, fmt.Errorf("%w: %v", ErrDispatchFailed, dispatchErr)
	}

	s.logger.Info("task created",
		zap.String("task_id", task.ID),
		zap.String("target", p.DispatchTarget),
		zap.String("queue", task.Queue),
		zap.String("dispatch_id", handle))
	return task, nil
}

// GetTask reads through the cache mirror.
func (s *TaskService) GetTask(ctx context.Context, id string) (*models.Task, error) {
	if cached, err := s.cache.Get(ctx, id); err != nil {
		s.logger.Warn("task cache read failed", zap.String("task_id", id), zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mirror(ctx, task)
	return task, nil
}

// GetTasks lists records newest first unless OrderBy/OrderAsc say otherwise.
func (s *TaskService) GetTasks(ctx context.Context, f TaskFilter) ([]models.Task, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultTaskListLimit
	}
	if f.Limit > MaxTaskListLimit {
		f.Limit = MaxTaskListLimit
	}
	if f.Skip < 0 {
		f.Skip = 0
	}
	if f.OrderBy == "" {
		f.OrderBy = "created_at"
	}

	query := s.filtered(ctx, f)
	if sortableTaskColumns[f.OrderBy] {
		dir := "desc"
		if f.OrderAsc {
			dir = "asc"
		}
		query = query.Order(f.OrderBy + " " + dir)
	}

	var tasks []models.Task
	if err := query.Offset(f.Skip).Limit(f.Limit).Find(&tasks).Error; err != nil {
		return nil, err
	}
	for i := range tasks {
		s.mirror(ctx, &tasks[i])
	}
	return tasks, nil
}

// UpdateTaskStatus applies a status write. started_at is set on the first
// transition to RUNNING and completed_at on the first terminal status.
// Only the touched columns are written, and only while the stored record is
// not terminal. Terminal records come back unchanged with ErrTaskTerminal.
func (s *TaskService) UpdateTaskStatus(ctx context.Context, id string, upd TaskStatusUpdate) (*models.Task, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return task, ErrTaskTerminal
	}

	from := task.Status
	if upd.Status == "" {
		upd.Status = task.Status
	}
	now := s.now()

	updates := map[string]interface{}{"status": upd.Status}
	if upd.Status == models.TaskStatusRunning {
		updates["started_at"] = gorm.Expr("COALESCE(started_at, ?)", now)
	}
	if upd.Status.IsTerminal() {
		updates["completed_at"] = gorm.Expr("COALESCE(completed_at, ?)", now)
	}
	if upd.Progress != nil {
		updates["progress"] = clampProgress(*upd.Progress)
	}
	if upd.Status == models.TaskStatusSucceeded {
		updates["progress"] = 100
	}
	if upd.Result != nil {
		raw, err := marshalJSON(upd.Result)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		updates["result"] = raw
	}
	if upd.Error != nil {
		raw, err := marshalJSON(upd.Error)
		if err != nil {
			return nil, fmt.Errorf("encode error: %w", err)
		}
		updates["error"] = raw
	}

	res := s.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND status NOT IN ?", id, models.TerminalTaskStatuses).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	task, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mirror(ctx, task)
	if res.RowsAffected == 0 {
		// Another writer finished the task after our read.
		return task, ErrTaskTerminal
	}

	if from != task.Status {
		s.logger.Info("task status changed",
			zap.String("task_id", task.ID),
			zap.String("from", string(from)),
			zap.String("to", string(task.Status)),
			zap.Int("progress", task.Progress))
	}
	return task, nil
}

// CancelResult reports the outcome of CancelTask. Status is the stored
// status after the attempt and is empty when the task does not exist.
type CancelResult struct {
	Cancelled bool
	Status    models.TaskStatus
}

// CancelTask revokes a non-terminal task. Cancelled is false, and the record
// untouched, when the task is missing, already terminal, finished while the
// revoke was in flight, or the dispatcher refuses the revoke.
func (s *TaskService) CancelTask(ctx context.Context, id string) (CancelResult, error) {
	task, err := s.load(ctx, id)
	if errors.Is(err, ErrTaskNotFound) {
		return CancelResult{}, nil
	}
	if err != nil {
		return CancelResult{}, err
	}
	if task.Status.IsTerminal() {
		return CancelResult{Status: task.Status}, nil
	}

	if task.DispatchID != nil {
		if err := s.dispatcher.Revoke(ctx, *task.DispatchID, true); err != nil {
			s.logger.Warn("task revoke failed", zap.String("task_id", id), zap.Error(err))
			return CancelResult{Status: task.Status}, nil
		}
	}

	res := s.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND status NOT IN ?", id, models.TerminalTaskStatuses).
		Updates(map[string]interface{}{
			"status":       models.TaskStatusRevoked,
			"completed_at": gorm.Expr("COALESCE(completed_at, ?)", s.now()),
		})
	if res.Error != nil {
		return CancelResult{}, res.Error
	}
	task, err = s.load(ctx, id)
	if errors.Is(err, ErrTaskNotFound) {
		return CancelResult{}, nil
	}
	if err != nil {
		return CancelResult{}, err
	}
	s.mirror(ctx, task)
	if res.RowsAffected == 0 {
		return CancelResult{Status: task.Status}, nil
	}
	s.logger.Info("task revoked", zap.String("task_id", id))
	return CancelResult{Cancelled: true, Status: task.Status}, nil
}

// DeleteTask cancels in-flight work, then removes the record and its cache
// entries. The record is removed even if the cancel was refused.
func (s *TaskService) DeleteTask(ctx context.Context, id string) (bool, error) {
	task, err := s.load(ctx, id)
	if errors.Is(err, ErrTaskNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if task.Status == models.TaskStatusPending || task.Status == models.TaskStatusRunning {
		if _, err := s.CancelTask(ctx, id); err != nil {
			s.logger.Warn("cancel before delete failed", zap.String("task_id", id), zap.Error(err))
		}
	}

	if err := s.db.WithContext(ctx).Delete(&models.Task{}, "id = ?", id).Error; err != nil {
		return false, err
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("task cache invalidate failed", zap.String("task_id", id), zap.Error(err))
	}
	s.logger.Info("task deleted", zap.String("task_id", id))
	return true, nil
}

var dispatchStateToStatus = map[string]models.TaskStatus{
	DispatchPending: models.TaskStatusPending,
	DispatchStarted: models.TaskStatusRunning,
	DispatchSuccess: models.TaskStatusSucceeded,
	DispatchFailure: models.TaskStatusFailed,
	DispatchRevoked: models.TaskStatusRevoked,
}

// SyncTaskStatus reconciles the record with the dispatcher's view. It is a
// no-op for tasks without a handle, for unknown states, and for records
// that are already terminal. Dispatcher errors are logged and the stored
// record is returned.
func (s *TaskService) SyncTaskStatus(ctx context.Context, id string) (*models.Task, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.DispatchID == nil {
		return task, nil
	}

	st, err := s.dispatcher.Status(ctx, *task.DispatchID)
	if err != nil {
		s.logger.Warn("dispatcher status lookup failed", zap.String("task_id", id), zap.Error(err))
		return task, nil
	}
	mapped, ok := dispatchStateToStatus[st.State]
	if !ok || mapped == task.Status {
		return task, nil
	}

	progress := task.Progress
	if st.Progress != nil {
		progress = *st.Progress
	}
	updated, err := s.UpdateTaskStatus(ctx, id, TaskStatusUpdate{
		Status:   mapped,
		Progress: &progress,
		Result:   st.Result,
		Error:    st.Error,
	})
	if errors.Is(err, ErrTaskTerminal) {
		return updated, nil
	}
	return updated, err
}

// GetTaskCount returns {"total": n} plus one entry per status. With a status
// filter only that status and the total are reported.
func (s *TaskService) GetTaskCount(ctx context.Context, f TaskFilter) (map[string]int64, error) {
	var total int64
	if err := s.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, err
	}

	if f.Status != "" {
		return map[string]int64{"total": total, string(f.Status): total}, nil
	}

	counts := map[string]int64{"total": total}
	for _, status := range models.TaskStatuses {
		if total == 0 {
			counts[string(status)] = 0
			continue
		}
		perStatus := f
		perStatus.Status = status
		var n int64
		if err := s.filtered(ctx, perStatus).Count(&n).Error; err != nil {
			return nil, err
		}
		counts[string(status)] = n
	}
	return counts, nil
}

// CleanupFinished deletes terminal records completed before cutoff and
// returns how many were removed.
func (s *TaskService) CleanupFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.Task{}).
		Where("status IN ? AND completed_at < ?", models.TerminalTaskStatuses, cutoff).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	res := s.db.WithContext(ctx).Delete(&models.Task{}, "id IN ?", ids)
	if res.Error != nil {
		return 0, res.Error
	}
	for _, id := range ids {
		_ = s.cache.Invalidate(ctx, id)
	}
	return res.RowsAffected, nil
}

func (s *TaskService) filtered(ctx context.Context, f TaskFilter) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Task{})
	if f.UserID != "" {
		query = query.Where("user_id = ?", f.UserID)
	}
	if f.ModelID != "" {
		query = query.Where("model_id = ?", f.ModelID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.TaskType != "" {
		query = query.Where("task_type = ?", f.TaskType)
	}
	return query
}

func (s *TaskService) load(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	err := s.db.WithContext(ctx).First(&task, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// mirror refreshes the cache. Failures are logged, never returned.
func (s *TaskService) mirror(ctx context.Context, task *models.Task) {
	if err := s.cache.Put(ctx, task); err != nil {
		s.logger.Warn("task cache write failed", zap.String("task_id", task.ID), zap.Error(err))
	}
}

func marshalJSON(v interface{}) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return datatypes.JSON(raw), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
