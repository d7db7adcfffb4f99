package worker

import (
	"context"
	"net/http"
	"time"

	"modelhub-backend/internal/services"
)

// Deps are the collaborators task handlers need.
type Deps struct {
	Tasks      *services.TaskService
	Models     *services.ModelService
	Health     *services.HealthChecker
	HTTPClient *http.Client
	WebhookURL string

	// Step is the simulated unit of work for long running tasks.
	Step time.Duration
}

// RegisterTasks binds every built-in handler.
func RegisterTasks(reg *Registry, deps Deps) error {
	if deps.Step <= 0 {
		deps.Step = time.Second
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	bindings := map[string]HandlerFunc{
		TaskLongRunning:  longRunning(deps),
		TaskBatchProcess: batchProcessItems(deps),
		TaskNotify:       sendNotification(deps),
		TaskCleanup:      cleanupOldData(deps),
		TaskValidate:     validateModel(deps),
		TaskDeploy:       deployModel(deps),
		TaskHealthCheck:  healthCheck(deps),
		TaskAlert:        emergencyAlert(deps),
	}
	for name, fn := range bindings {
		if err := reg.Handle(name, fn); err != nil {
			return err
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
