package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"modelhub-backend/internal/models"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskOptions(t *testing.T) {
	assert.True(t, Registered(TaskValidate))
	assert.False(t, Registered("common:mine_bitcoin"))
	assert.Nil(t, TaskOptions("common:mine_bitcoin"))
	assert.Len(t, TaskOptions(TaskDeploy), 2)

	names := make([]string, 0)
	for _, d := range Definitions() {
		names = append(names, d.Name)
	}
	assert.Contains(t, names, TaskHealthCheck)
	assert.IsIncreasing(t, names)
}

func TestRegistryHandle(t *testing.T) {
	f := newWorkerFixture(t, nil)
	reg := NewRegistry(f.runner)

	assert.Error(t, reg.Handle("unknown:task", func(context.Context, *Execution) (interface{}, error) { return nil, nil }))
	require.NoError(t, reg.Handle(TaskLongRunning, func(context.Context, *Execution) (interface{}, error) { return nil, nil }))
	assert.Equal(t, []string{TaskLongRunning}, reg.Handlers())
	assert.NotNil(t, reg.Mux())
}

func TestRegistryAfterHooks(t *testing.T) {
	f := newWorkerFixture(t, nil)
	reg := NewRegistry(f.runner)

	var seen []interface{}
	reg.RegisterAfterExecutionHook(func(ctx context.Context, e *Execution, result interface{}) error {
		seen = append(seen, result)
		return errors.New("hook errors are only logged")
	})

	ok := reg.withHooks(func(context.Context, *Execution) (interface{}, error) { return "fine", nil })
	failing := reg.withHooks(func(context.Context, *Execution) (interface{}, error) { return nil, errors.New("nope") })

	task := f.newTask(t, models.TaskStatusPending)
	require.NoError(t, f.runner.Run(context.Background(), TaskLongRunning, payloadFor(task.ID, nil), nil, ok))
	assert.Equal(t, models.TaskStatusSucceeded, f.reload(t, task.ID).Status)

	other := f.newTask(t, models.TaskStatusPending)
	assert.Error(t, f.runner.Run(context.Background(), TaskLongRunning, payloadFor(other.ID, nil), nil, failing))

	assert.Equal(t, []interface{}{"fine"}, seen)
}

func TestRetryDelay(t *testing.T) {
	task := asynq.NewTask(TaskLongRunning, nil)
	for n := 0; n < 5; n++ {
		d := RetryDelay(n, errors.New("x"), task)
		base := time.Duration(1<<n) * time.Second
		assert.GreaterOrEqual(t, d, time.Duration(float64(base)*0.7))
		assert.LessOrEqual(t, d, time.Duration(float64(base)*1.3))
	}
	assert.Equal(t, maxRetryDelay, RetryDelay(10, errors.New("x"), task))
	assert.Zero(t, RetryDelay(1, context.DeadlineExceeded, task))
}
