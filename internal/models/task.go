package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// TaskStatus is the lifecycle state of a tracked background task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusRevoked   TaskStatus = "revoked"
)

// TaskStatuses lists every status in display order.
var TaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusRunning,
	TaskStatusSucceeded,
	TaskStatusFailed,
	TaskStatusRevoked,
}

// IsTerminal is true once a task can no longer change.
// TerminalTaskStatuses are the statuses a record never leaves.
var TerminalTaskStatuses = []TaskStatus{TaskStatusSucceeded, TaskStatusFailed, TaskStatusRevoked}

func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed || s == TaskStatusRevoked
}

func ParseTaskStatus(s string) (TaskStatus, error) {
	status := TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range TaskStatuses {
		if status == known {
			return status, nil
		}
	}
	return "", fmt.Errorf("invalid task status %q", s)
}

// TaskPriority orders tasks for queue selection. Higher is more urgent.
type TaskPriority int

const (
	TaskPriorityLow      TaskPriority = 1
	TaskPriorityNormal   TaskPriority = 2
	TaskPriorityHigh     TaskPriority = 3
	TaskPriorityCritical TaskPriority = 4
)

var priorityNames = map[string]TaskPriority{
	"LOW":      TaskPriorityLow,
	"NORMAL":   TaskPriorityNormal,
	"HIGH":     TaskPriorityHigh,
	"CRITICAL": TaskPriorityCritical,
}

// ParseTaskPriority accepts a priority name (case-insensitive) or its integer value.
func ParseTaskPriority(s string) (TaskPriority, error) {
	s = strings.TrimSpace(s)
	if p, ok := priorityNames[strings.ToUpper(s)]; ok {
		return p, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		p := TaskPriority(n)
		if p.Valid() {
			return p, nil
		}
	}
	return 0, fmt.Errorf("invalid task priority %q", s)
}

func (p TaskPriority) Valid() bool {
	return p >= TaskPriorityLow && p <= TaskPriorityCritical
}

func (p TaskPriority) String() string {
	for name, v := range priorityNames {
		if v == p {
			return name
		}
	}
	return strconv.Itoa(int(p))
}

// Task is the durable record of one unit of asynchronous work.
type Task struct {
	ID             string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name           string         `gorm:"size:255;not null;index" json:"name"`
	TaskType       string         `gorm:"size:50;not null;index" json:"task_type"`
	Status         TaskStatus     `gorm:"size:20;not null;index" json:"status"`
	Priority       TaskPriority   `gorm:"not null" json:"priority"`
	DispatchTarget string         `gorm:"size:255;not null" json:"dispatch_target"`
	DispatchID     *string        `gorm:"size:255;uniqueIndex" json:"dispatch_id"`
	Queue          string         `gorm:"size:50" json:"queue"`
	Args           datatypes.JSON `json:"args" swaggertype:"array,object"`
	Kwargs         datatypes.JSON `json:"kwargs" swaggertype:"object"`
	Result         datatypes.JSON `json:"result" swaggertype:"object"`
	Error          datatypes.JSON `json:"error" swaggertype:"object"`
	Progress       int            `gorm:"not null" json:"progress"`
	CreatedAt      time.Time      `gorm:"not null;index" json:"created_at"`
	StartedAt      *time.Time     `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at"`
	UserID         *string        `gorm:"type:varchar(36);index" json:"user_id"`
	ModelID        *string        `gorm:"type:varchar(36);index" json:"model_id"`
}

func (Task) TableName() string {
	return "tasks"
}

// OwnedBy reports whether userID owns the task.
func (t Task) OwnedBy(userID string) bool {
	return t.UserID != nil && *t.UserID == userID
}
