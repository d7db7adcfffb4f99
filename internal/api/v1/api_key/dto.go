package api_key

import (
	"time"

	"modelhub-backend/internal/models"
)

type CreateAPIKeyRequest struct {
	Name      string     `json:"name" binding:"required,max=100"`
	Scopes    string     `json:"scopes" binding:"max=255"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type UpdateAPIKeyRequest struct {
	Name      *string    `json:"name,omitempty" binding:"omitempty,max=100"`
	Scopes    *string    `json:"scopes,omitempty" binding:"omitempty,max=255"`
	IsActive  *bool      `json:"is_active,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CreatedAPIKey is returned once, on creation, and is the only response
// carrying the raw key.
type CreatedAPIKey struct {
	models.APIKey
	Key string `json:"key"`
}

type APIKeyListResponse struct {
	Keys  []models.APIKey `json:"keys"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}
