package user

import (
	v1user "modelhub-backend/internal/api/v1/user"
)

type UserListResponse struct {
	Users []v1user.UserResponse `json:"users"`
	Total int64                 `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
}

// CreateUserRequest represents the request body for an admin creating an account
type CreateUserRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	FullName string `json:"full_name" binding:"max=100"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"omitempty,oneof=super_admin admin developer user"`
	IsActive *bool  `json:"is_active,omitempty"`
}

// UpdateUserRequest represents the request body for updating a user
type UpdateUserRequest struct {
	Email    *string `json:"email,omitempty" binding:"omitempty,email"`
	FullName *string `json:"full_name,omitempty" binding:"omitempty,max=100"`
	Password *string `json:"password,omitempty" binding:"omitempty,min=6"`
	Role     *string `json:"role,omitempty" binding:"omitempty,oneof=super_admin admin developer user"`
	IsActive *bool   `json:"is_active,omitempty"`
}
