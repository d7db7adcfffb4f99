package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Task type names understood by the worker.
const (
	TaskLongRunning  = "common:long_running"
	TaskBatchProcess = "common:batch_process_items"
	TaskNotify       = "common:send_notification"
	TaskCleanup      = "common:cleanup_old_data"
	TaskValidate     = "model:validate"
	TaskDeploy       = "model:deploy"
	TaskHealthCheck  = "system:health_check"
	TaskAlert        = "system:emergency_alert"
)

// Definition is the static description of a task type, shared by the API
// (to validate targets and set enqueue options) and the worker.
type Definition struct {
	Name     string
	MaxRetry int
	Timeout  time.Duration
}

var definitions = map[string]Definition{
	TaskLongRunning:  {Name: TaskLongRunning, MaxRetry: 3, Timeout: 2 * time.Hour},
	TaskBatchProcess: {Name: TaskBatchProcess, MaxRetry: 3, Timeout: time.Hour},
	TaskNotify:       {Name: TaskNotify, MaxRetry: 5, Timeout: time.Minute},
	TaskCleanup:      {Name: TaskCleanup, MaxRetry: 1, Timeout: 30 * time.Minute},
	TaskValidate:     {Name: TaskValidate, MaxRetry: 2, Timeout: 30 * time.Minute},
	TaskDeploy:       {Name: TaskDeploy, MaxRetry: 2, Timeout: time.Hour},
	TaskHealthCheck:  {Name: TaskHealthCheck, MaxRetry: 0, Timeout: time.Minute},
	TaskAlert:        {Name: TaskAlert, MaxRetry: 3, Timeout: 5 * time.Minute},
}

// Registered reports whether name is a known task type.
func Registered(name string) bool {
	_, ok := definitions[name]
	return ok
}

// TaskOptions returns the enqueue options for name. Unknown names get none.
func TaskOptions(name string) []asynq.Option {
	def, ok := definitions[name]
	if !ok {
		return nil
	}
	opts := []asynq.Option{asynq.MaxRetry(def.MaxRetry)}
	if def.Timeout > 0 {
		opts = append(opts, asynq.Timeout(def.Timeout))
	}
	return opts
}

// Definitions lists every task type sorted by name.
func Definitions() []Definition {
	out := make([]Definition, 0, len(definitions))
	for _, d := range definitions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AfterExecutionHook runs after a handler succeeds. Errors are logged and do
// not change the task outcome.
type AfterExecutionHook func(ctx context.Context, exec *Execution, result interface{}) error

// Registry binds handlers to task types and builds the asynq mux.
type Registry struct {
	runner *Runner

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	hooks    []AfterExecutionHook
}

func NewRegistry(runner *Runner) *Registry {
	return &Registry{runner: runner, handlers: make(map[string]HandlerFunc)}
}

// Handle binds fn to a task type declared in the definitions table.
func (r *Registry) Handle(name string, fn HandlerFunc) error {
	if !Registered(name) {
		return fmt.Errorf("unknown task type %q", name)
	}
	r.mu.Lock()
	r.handlers[name] = fn
	r.mu.Unlock()
	return nil
}

func (r *Registry) RegisterAfterExecutionHook(h AfterExecutionHook) {
	r.mu.Lock()
	r.hooks = append(r.hooks, h)
	r.mu.Unlock()
}

func (r *Registry) runAfterExecutionHooks(ctx context.Context, exec *Execution, result interface{}) {
	r.mu.RLock()
	hooks := make([]AfterExecutionHook, len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.RUnlock()
	for _, h := range hooks {
		if err := h(ctx, exec, result); err != nil {
			exec.log.Warn("after execution hook failed", zap.Error(err))
		}
	}
}

// Handlers lists the bound task types.
func (r *Registry) Handlers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Mux wraps every bound handler with the runner and the after hooks.
func (r *Registry) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, name := range r.Handlers() {
		r.mu.RLock()
		fn := r.handlers[name]
		r.mu.RUnlock()
		mux.Handle(name, r.runner.Wrap(name, r.withHooks(fn)))
	}
	return mux
}

func (r *Registry) withHooks(fn HandlerFunc) HandlerFunc {
	return func(ctx context.Context, exec *Execution) (interface{}, error) {
		result, err := fn(ctx, exec)
		if err == nil {
			r.runAfterExecutionHooks(ctx, exec, result)
		}
		return result, err
	}
}
