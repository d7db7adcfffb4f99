package services

import (
	"context"
	"sync"
	"time"

	"modelhub-backend/internal/models"
	"modelhub-backend/pkg/logger"

	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 30 * time.Second
	defaultPollBatch    = 200
)

// StatusPoller periodically reconciles in-flight task records with the
// dispatcher, so records converge even when no client asks for sync_status.
type StatusPoller struct {
	tasks    *TaskService
	interval time.Duration
	batch    int
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewStatusPoller(tasks *TaskService, interval time.Duration, log *zap.Logger) *StatusPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &StatusPoller{
		tasks:    tasks,
		interval: interval,
		batch:    defaultPollBatch,
		logger:   logger.OrGlobal(log).Named("poller"),
	}
}

// Start polls every interval until Stop or ctx ends.
func (p *StatusPoller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
					p.logger.Error("task status poll failed", zap.Error(err))
				}
			}
		}
	}()
	p.logger.Info("status poller started", zap.Duration("interval", p.interval))
}

func (p *StatusPoller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("status poller stopped")
}

// PollOnce syncs the oldest pending and running tasks that have a dispatch
// handle and returns how many changed status.
func (p *StatusPoller) PollOnce(ctx context.Context) (int, error) {
	var ids []string
	err := p.tasks.db.WithContext(ctx).Model(&models.Task{}).
		Where("status IN ? AND dispatch_id IS NOT NULL", []models.TaskStatus{models.TaskStatusPending, models.TaskStatusRunning}).
		Order("created_at asc").
		Limit(p.batch).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		before, err := p.tasks.load(ctx, id)
		if err != nil {
			continue
		}
		after, err := p.tasks.SyncTaskStatus(ctx, id)
		if err != nil {
			p.logger.Warn("task sync failed", zap.String("task_id", id), zap.Error(err))
			continue
		}
		if after.Status != before.Status {
			changed++
		}
	}
	if changed > 0 {
		p.logger.Info("reconciled task statuses", zap.Int("checked", len(ids)), zap.Int("changed", changed))
	}
	return changed, nil
}
