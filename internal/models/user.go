package models

import "time"

type UserRole string

const (
	RoleSuperAdmin UserRole = "super_admin"
	RoleAdmin      UserRole = "admin"
	RoleDeveloper  UserRole = "developer"
	RoleUser       UserRole = "user"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleDeveloper, RoleUser:
		return true
	}
	return false
}

type User struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Username  string    `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	FullName  string    `gorm:"size:100" json:"full_name"`
	Password  string    `gorm:"not null" json:"-"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	Role      UserRole  `gorm:"size:20;not null;default:'user'" json:"role"`
	Version   int       `gorm:"default:1" json:"version"`
}

// IsAdmin is true for admin and super_admin roles.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Role == RoleSuperAdmin
}
