package models

import "time"

type APIKey struct {
	ID         string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Name       string     `gorm:"size:100;not null" json:"name"`
	Key        string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	Scopes     string     `gorm:"size:255" json:"scopes"`
	IsActive   bool       `gorm:"not null" json:"is_active"`
	ExpiresAt  *time.Time `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	UsageCount int64      `gorm:"not null;default:0" json:"usage_count"`
	UserID     string     `gorm:"type:varchar(36);index;not null" json:"user_id"`
}

// Usable reports whether the key can authenticate at the given instant.
func (k APIKey) Usable(now time.Time) bool {
	if !k.IsActive {
		return false
	}
	return k.ExpiresAt == nil || now.Before(*k.ExpiresAt)
}
