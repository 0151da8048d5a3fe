package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TrackPoint is one decoded GPS sample.
type TrackPoint struct {
	Lat  float64    `json:"lat"`
	Lon  float64    `json:"lon"`
	Ele  float64    `json:"ele,omitempty"`
	Time *time.Time `json:"time,omitempty"`
}

type TrackPointList []TrackPoint

func (l TrackPointList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *TrackPointList) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported track point column type %T", value)
	}
}

// Run stores the reducer outputs verbatim. Distance, duration and pace are
// mutually derivable but persisted independently; no consistency check is
// applied on write.
type Run struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	UserID          string         `gorm:"column:user_id;size:36;index;not null" json:"user_id"`
	Title           string         `json:"title"`
	StartTime       time.Time      `gorm:"column:start_time;index" json:"start_time"`
	DistanceKM      float64        `gorm:"column:distance_km" json:"distance_km"`
	DurationSeconds int            `gorm:"column:duration_seconds" json:"duration_seconds"`
	AvgPace         float64        `gorm:"column:avg_pace" json:"avg_pace"`
	ElevationGain   float64        `gorm:"column:elevation_gain" json:"elevation_gain"`
	TrackPath       string         `gorm:"column:track_path" json:"-"`
	Points          TrackPointList `gorm:"column:points;type:jsonb" json:"points,omitempty"`
	Prediction      *Prediction    `gorm:"column:prediction;type:jsonb" json:"prediction,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

func (Run) TableName() string { return "runs" }

func (r *Run) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
