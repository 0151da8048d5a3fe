package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	Email          string    `gorm:"uniqueIndex;not null" json:"email"`
	Password       string    `gorm:"not null" json:"-"`
	DisplayName    string    `gorm:"column:display_name" json:"display_name"`
	UnitPreference string    `gorm:"column:unit_preference;default:metric" json:"unit_preference"`
	AvatarPath     string    `gorm:"column:avatar_path" json:"-"`
	Role           string    `gorm:"default:user" json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
