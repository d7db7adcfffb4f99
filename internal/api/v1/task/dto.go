package task

import (
	"encoding/json"

	"modelhub-backend/internal/models"
)

type CreateTaskRequest struct {
	Name           string                 `json:"name" binding:"required,max=255"`
	TaskType       string                 `json:"task_type" binding:"required,max=50"`
	DispatchTarget string                 `json:"dispatch_target" binding:"required,max=255"`
	Args           []interface{}          `json:"args"`
	Kwargs         map[string]interface{} `json:"kwargs"`
	// Priority is a name (LOW, NORMAL, HIGH, CRITICAL) or its number 1-4.
	Priority json.RawMessage `json:"priority,omitempty" swaggertype:"string"`
	ModelID  *string         `json:"model_id,omitempty"`
	// UserID lets an admin submit on behalf of another user.
	UserID *string `json:"user_id,omitempty"`
}

type UpdateTaskRequest struct {
	Status   *string     `json:"status,omitempty"`
	Progress *int        `json:"progress,omitempty"`
	Result   interface{} `json:"result,omitempty"`
	Error    interface{} `json:"error,omitempty"`
}

type TaskListResponse struct {
	Total int           `json:"total"`
	Items []models.Task `json:"items"`
}
