package services

import "modelhub-backend/internal/models"

const (
	QueueDefault         = "default"
	QueueHighPriority    = "high_priority"
	QueueLowPriority     = "low_priority"
	QueueModelOperations = "model_operations"

	TaskTypeModelOperation = "model_operation"
)

// QueueWeights is the relative share of worker attention per queue.
var QueueWeights = map[string]int{
	QueueHighPriority:    6,
	QueueModelOperations: 4,
	QueueDefault:         3,
	QueueLowPriority:     1,
}

// QueueRule maps a task to a queue when Match returns true.
type QueueRule struct {
	Name  string
	Match func(taskType string, priority models.TaskPriority) bool
	Queue string
}

// QueueRouter evaluates rules in order; the first match wins.
type QueueRouter struct {
	rules    []QueueRule
	fallback string
}

func NewQueueRouter(fallback string, rules ...QueueRule) *QueueRouter {
	if fallback == "" {
		fallback = QueueDefault
	}
	return &QueueRouter{rules: rules, fallback: fallback}
}

// DefaultQueueRouter checks task type before priority.
func DefaultQueueRouter() *QueueRouter {
	return NewQueueRouter(QueueDefault,
		TaskTypeRule(TaskTypeModelOperation, QueueModelOperations),
		QueueRule{
			Name:  "priority>=high",
			Match: func(_ string, p models.TaskPriority) bool { return p >= models.TaskPriorityHigh },
			Queue: QueueHighPriority,
		},
		QueueRule{
			Name:  "priority==low",
			Match: func(_ string, p models.TaskPriority) bool { return p == models.TaskPriorityLow },
			Queue: QueueLowPriority,
		},
	)
}

func TaskTypeRule(taskType, queue string) QueueRule {
	return QueueRule{
		Name:  "type=" + taskType,
		Match: func(t string, _ models.TaskPriority) bool { return t == taskType },
		Queue: queue,
	}
}

func (r *QueueRouter) Select(taskType string, priority models.TaskPriority) string {
	for _, rule := range r.rules {
		if rule.Match(taskType, priority) {
			return rule.Queue
		}
	}
	return r.fallback
}
