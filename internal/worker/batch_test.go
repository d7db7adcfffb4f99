package worker

import (
	"context"
	"errors"
	"testing"

	"modelhub-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func progressLog(logs *observer.ObservedLogs) []int {
	var out []int
	for _, entry := range logs.FilterMessage("task progress").All() {
		out = append(out, int(entry.ContextMap()["progress"].(int64)))
	}
	return out
}

func TestBatchProcessEmpty(t *testing.T) {
	f := newWorkerFixture(t, nil)
	task := f.newTask(t, models.TaskStatusPending)

	var result BatchResult
	err := f.runner.Run(context.Background(), TaskBatchProcess, payloadFor(task.ID, nil), nil, func(ctx context.Context, e *Execution) (interface{}, error) {
		result = e.BatchProcess(nil, func(interface{}, int) (interface{}, error) {
			t.Fatal("should not be called")
			return nil, nil
		}, 10)
		return result, nil
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, result.Processed)
	assert.Zero(t, result.Errors)
	assert.Empty(t, result.Results)
	assert.Empty(t, result.ErrorDetails)
}

func TestBatchProcessCollectsErrors(t *testing.T) {
	f := newWorkerFixture(t, nil)
	task := f.newTask(t, models.TaskStatusPending)

	items := make([]interface{}, 250)
	for i := range items {
		items[i] = i
	}

	var result BatchResult
	err := f.runner.Run(context.Background(), TaskBatchProcess, payloadFor(task.ID, nil), nil, func(ctx context.Context, e *Execution) (interface{}, error) {
		result = e.BatchProcess(items, func(item interface{}, index int) (interface{}, error) {
			if index%20 == 0 {
				return nil, errors.New("divisible by twenty")
			}
			if index == 249 {
				panic("last item")
			}
			return item.(int) * 2, nil
		}, 0)
		return result, nil
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 250, result.Processed)
	assert.Equal(t, 14, result.Errors)
	assert.Len(t, result.Results, 236)
	assert.Len(t, result.ErrorDetails, maxErrorDetails)
	assert.Equal(t, 0, result.ErrorDetails[0].Index)
	assert.Equal(t, "divisible by twenty", result.ErrorDetails[0].Error)

	stored := f.reload(t, task.ID)
	assert.Equal(t, models.TaskStatusSucceeded, stored.Status)
	assert.Equal(t, 100, stored.Progress)
}

func TestBatchProcessProgressCappedUntilDone(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	f := newWorkerFixture(t, zap.New(core))
	f.runner.progressInterval = 0
	task := f.newTask(t, models.TaskStatusPending)

	items := []interface{}{"a", "b", "c"}
	err := f.runner.Run(context.Background(), TaskBatchProcess, payloadFor(task.ID, nil), nil, func(ctx context.Context, e *Execution) (interface{}, error) {
		return e.BatchProcess(items, func(item interface{}, index int) (interface{}, error) {
			return item, nil
		}, 1), nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 33, 66, 99, 100}, progressLog(logs))

	stored := f.reload(t, task.ID)
	result := decode(t, stored.Result)
	assert.Equal(t, true, result["success"])
	assert.EqualValues(t, 3, result["processed"])
}

func TestBatchProcessFinalUpdateIgnoresRateLimit(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	f := newWorkerFixture(t, zap.New(core))
	task := f.newTask(t, models.TaskStatusPending)

	err := f.runner.Run(context.Background(), TaskBatchProcess, payloadFor(task.ID, nil), nil, func(ctx context.Context, e *Execution) (interface{}, error) {
		return e.BatchProcess([]interface{}{1, 2}, func(item interface{}, index int) (interface{}, error) {
			return item, nil
		}, 1), nil
	})
	require.NoError(t, err)

	// The clock never moves, so only the forced summary is written.
	assert.Equal(t, []int{100}, progressLog(logs))
}
