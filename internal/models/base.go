package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// newID fills an empty string primary key with a random UUID.
func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	newID(&u.ID)
	return nil
}

func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	newID(&k.ID)
	return nil
}

func (m *Model) BeforeCreate(tx *gorm.DB) error {
	newID(&m.ID)
	return nil
}

func (v *ModelVersion) BeforeCreate(tx *gorm.DB) error {
	newID(&v.ID)
	return nil
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	newID(&t.ID)
	return nil
}
