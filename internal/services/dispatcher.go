package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// Dispatcher-native task states, independent of models.TaskStatus.
const (
	DispatchPending = "PENDING"
	DispatchStarted = "STARTED"
	DispatchSuccess = "SUCCESS"
	DispatchFailure = "FAILURE"
	DispatchRevoked = "REVOKED"
)

// DispatchStatus is what the queue backend knows about a handle.
type DispatchStatus struct {
	State    string
	Progress *int
	Result   interface{}
	Error    interface{}
}

// TaskPayload is the wire body of every enqueued task.
type TaskPayload struct {
	Args   []interface{}          `json:"args"`
	Kwargs map[string]interface{} `json:"kwargs"`
}

// Dispatcher submits work to the queue backend and inspects it afterwards.
type Dispatcher interface {
	Enqueue(ctx context.Context, name string, args []interface{}, kwargs map[string]interface{}, queue string) (string, error)
	Revoke(ctx context.Context, handle string, terminate bool) error
	Status(ctx context.Context, handle string) (DispatchStatus, error)
}

// taskInspector is the subset of *asynq.Inspector the dispatcher needs.
type taskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
	CancelProcessing(id string) error
}

// AsynqDispatcher implements Dispatcher on top of asynq.
type AsynqDispatcher struct {
	client     *asynq.Client
	inspector  taskInspector
	retention  time.Duration
	optionsFor func(name string) []asynq.Option
}

// NewAsynqDispatcher builds a dispatcher. optionsFor supplies per-task
// options such as retry budget and timeout; it may be nil.
func NewAsynqDispatcher(redisOpt asynq.RedisConnOpt, retention time.Duration, optionsFor func(name string) []asynq.Option) *AsynqDispatcher {
	return &AsynqDispatcher{
		client:     asynq.NewClient(redisOpt),
		inspector:  asynq.NewInspector(redisOpt),
		retention:  retention,
		optionsFor: optionsFor,
	}
}

func (d *AsynqDispatcher) Enqueue(ctx context.Context, name string, args []interface{}, kwargs map[string]interface{}, queue string) (string, error) {
	if args == nil {
		args = []interface{}{}
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	payload, err := json.Marshal(TaskPayload{Args: args, Kwargs: kwargs})
	if err != nil {
		return "", err
	}

	var opts []asynq.Option
	if d.optionsFor != nil {
		opts = append(opts, d.optionsFor(name)...)
	}
	opts = append(opts, asynq.Queue(queue))
	if d.retention > 0 {
		opts = append(opts, asynq.Retention(d.retention))
	}

	info, err := d.client.EnqueueContext(ctx, asynq.NewTask(name, payload), opts...)
	if err != nil {
		return "", err
	}
	return formatHandle(info.Queue, info.ID), nil
}

func (d *AsynqDispatcher) Revoke(ctx context.Context, handle string, terminate bool) error {
	queue, id, err := parseHandle(handle)
	if err != nil {
		return err
	}
	info, err := d.inspector.GetTaskInfo(queue, id)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	switch info.State {
	case asynq.TaskStateActive:
		if !terminate {
			return nil
		}
		return d.inspector.CancelProcessing(id)
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateRetry, asynq.TaskStateAggregating:
		err := d.inspector.DeleteTask(queue, id)
		if errors.Is(err, asynq.ErrTaskNotFound) {
			return nil
		}
		return err
	default:
		return nil
	}
}

func (d *AsynqDispatcher) Status(ctx context.Context, handle string) (DispatchStatus, error) {
	queue, id, err := parseHandle(handle)
	if err != nil {
		return DispatchStatus{}, err
	}
	info, err := d.inspector.GetTaskInfo(queue, id)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return DispatchStatus{State: DispatchPending}, nil
	}
	if err != nil {
		return DispatchStatus{}, err
	}
	return statusFromInfo(info), nil
}

func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}

func statusFromInfo(info *asynq.TaskInfo) DispatchStatus {
	switch info.State {
	case asynq.TaskStateActive:
		st := DispatchStatus{State: DispatchStarted}
		var meta struct {
			Progress *int `json:"progress"`
		}
		if len(info.Result) > 0 && json.Unmarshal(info.Result, &meta) == nil {
			st.Progress = meta.Progress
		}
		return st
	case asynq.TaskStateCompleted:
		var result interface{}
		if len(info.Result) > 0 {
			if err := json.Unmarshal(info.Result, &result); err != nil {
				result = string(info.Result)
			}
		}
		return DispatchStatus{State: DispatchSuccess, Result: result}
	case asynq.TaskStateArchived:
		return DispatchStatus{State: DispatchFailure, Error: info.LastErr}
	default:
		return DispatchStatus{State: DispatchPending}
	}
}

func formatHandle(queue, id string) string {
	return queue + ":" + id
}

func parseHandle(handle string) (queue, id string, err error) {
	queue, id, ok := strings.Cut(handle, ":")
	if !ok || queue == "" || id == "" {
		return "", "", fmt.Errorf("malformed dispatch handle %q", handle)
	}
	return queue, id, nil
}
