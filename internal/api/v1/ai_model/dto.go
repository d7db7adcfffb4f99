package ai_model

import (
	"modelhub-backend/internal/models"
)

type ModelListResponse struct {
	Models []models.Model `json:"models"`
	Total  int64          `json:"total"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
}

type CreateModelRequest struct {
	Name        string                `json:"name" binding:"required,max=100"`
	Description string                `json:"description"`
	Framework   models.ModelFramework `json:"framework" binding:"omitempty,oneof=tensorflow pytorch onnx sklearn custom"`
	Version     string                `json:"version" binding:"max=50"`
	IsPublic    bool                  `json:"is_public"`
	Accuracy    *float64              `json:"accuracy,omitempty" binding:"omitempty,min=0,max=1"`
	Latency     *float64              `json:"latency,omitempty" binding:"omitempty,min=0"`
	Parameters  models.JSON           `json:"parameters"`
}

type UpdateModelRequest struct {
	Name        *string                `json:"name,omitempty" binding:"omitempty,max=100"`
	Description *string                `json:"description,omitempty"`
	Framework   *models.ModelFramework `json:"framework,omitempty" binding:"omitempty,oneof=tensorflow pytorch onnx sklearn custom"`
	IsPublic    *bool                  `json:"is_public,omitempty"`
	Status      *models.ModelStatus    `json:"status,omitempty" binding:"omitempty,oneof=undeployed archived"`
	Accuracy    *float64               `json:"accuracy,omitempty" binding:"omitempty,min=0,max=1"`
	Latency     *float64               `json:"latency,omitempty" binding:"omitempty,min=0"`
	Parameters  models.JSON            `json:"parameters,omitempty"`
}

// OperationRequest carries optional worker configuration for validate and deploy.
type OperationRequest struct {
	Config map[string]interface{} `json:"config"`
}

// OperationResponse points the caller at the task tracking the operation.
type OperationResponse struct {
	TaskID  string `json:"task_id"`
	ModelID string `json:"model_id"`
	Status  string `json:"status"`
	Queue   string `json:"queue"`
}

type CreateVersionRequest struct {
	Version   string `json:"version" binding:"required,max=50"`
	ChangeLog string `json:"change_log"`
}
