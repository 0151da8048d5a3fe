package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DistanceLabels is the closed set of event distances a certificate may carry.
var DistanceLabels = []string{"5K", "10K", "Half Marathon", "25K", "Marathon"}

func ValidDistanceLabel(label string) bool {
	for _, l := range DistanceLabels {
		if l == label {
			return true
		}
	}
	return false
}

type Certificate struct {
	ID                  string    `gorm:"primaryKey;size:36" json:"id"`
	UserID              string    `gorm:"column:user_id;size:36;index;not null" json:"user_id"`
	EventTitle          string    `gorm:"column:event_title" json:"event_title"`
	DistanceLabel       string    `gorm:"column:distance_label" json:"distance_label"`
	OfficialTimeSeconds int       `gorm:"column:official_time_seconds" json:"official_time_seconds"`
	EventDate           time.Time `gorm:"column:event_date" json:"event_date"`
	FilePath            string    `gorm:"column:file_path" json:"-"`
	Notes               string    `json:"notes,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

func (Certificate) TableName() string { return "certificates" }

func (c *Certificate) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
