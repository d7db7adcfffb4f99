package models

import "time"

type ModelFramework string

const (
	FrameworkTensorFlow ModelFramework = "tensorflow"
	FrameworkPyTorch    ModelFramework = "pytorch"
	FrameworkONNX       ModelFramework = "onnx"
	FrameworkSklearn    ModelFramework = "sklearn"
	FrameworkCustom     ModelFramework = "custom"
)

type ModelStatus string

const (
	ModelStatusUploading  ModelStatus = "uploading"
	ModelStatusUploaded   ModelStatus = "uploaded"
	ModelStatusValidating ModelStatus = "validating"
	ModelStatusValid      ModelStatus = "valid"
	ModelStatusInvalid    ModelStatus = "invalid"
	ModelStatusDeploying  ModelStatus = "deploying"
	ModelStatusDeployed   ModelStatus = "deployed"
	ModelStatusUndeployed ModelStatus = "undeployed"
	ModelStatusArchived   ModelStatus = "archived"
)

// Deployable lists the states a deploy request may start from.
func (s ModelStatus) Deployable() bool {
	switch s {
	case ModelStatusUploaded, ModelStatusValid, ModelStatusUndeployed:
		return true
	}
	return false
}

// Model is a registered machine-learning model and its current artifact.
type Model struct {
	ID          string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Name        string         `gorm:"size:100;index;not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Framework   ModelFramework `gorm:"size:20;not null;default:'custom'" json:"framework"`
	Version     string         `gorm:"size:50;not null;default:'0.1.0'" json:"version"`
	FilePath    string         `gorm:"size:512" json:"file_path"`
	FileSize    int64          `json:"file_size"`
	FileHash    string         `gorm:"size:64" json:"file_hash"`
	Status      ModelStatus    `gorm:"size:20;index;not null;default:'uploading'" json:"status"`
	IsPublic    bool           `gorm:"not null;default:false" json:"is_public"`
	EndpointURL string         `gorm:"size:512" json:"endpoint_url"`
	Accuracy    *float64       `json:"accuracy"`
	Latency     *float64       `json:"latency"`
	Parameters  JSON           `gorm:"type:jsonb;not null;default:'{}'" json:"parameters"`
	OwnerID     string         `gorm:"type:varchar(36);index;not null" json:"owner_id"`
}

type ModelVersion struct {
	ID        string      `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	ModelID   string      `gorm:"type:varchar(36);index;not null" json:"model_id"`
	Version   string      `gorm:"size:50;not null" json:"version"`
	ChangeLog string      `gorm:"type:text" json:"change_log"`
	FilePath  string      `gorm:"size:512" json:"file_path"`
	FileSize  int64       `json:"file_size"`
	FileHash  string      `gorm:"size:64" json:"file_hash"`
	Status    ModelStatus `gorm:"size:20;not null;default:'uploaded'" json:"status"`
	IsCurrent bool        `gorm:"not null;default:false" json:"is_current"`
}
