package models

import (
	"time"

	"gorm.io/gorm"
)

// Activity is a completed recording handed off for storage.
// One runner has many activities; each activity has many points.
type Activity struct {
	ID        string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID       uint         `gorm:"index" json:"user_id"`
	SessionID    string       `gorm:"uniqueIndex;type:varchar(36)" json:"session_id"`
	Name         string       `json:"name"`
	ActivityType ActivityType `gorm:"type:varchar(16)" json:"activity_type"`
	StartTime    time.Time    `json:"start_time"`
	EndTime      time.Time    `json:"end_time"`

	ElapsedSeconds float64 `json:"elapsed_seconds"`
	PausedSeconds  float64 `json:"paused_seconds"`
	DistanceMeters float64 `json:"distance_meters"`
	AverageSpeed   float64 `json:"average_speed"` // m/s

	// Polyline is the Google-encoded route, precision 5.
	Polyline string `gorm:"type:text" json:"polyline"`

	// Geometry stored as WKB LINESTRING (SRID 4326)
	Geometry []byte `gorm:"type:bytea" json:"-"`

	Points []ActivityPoint `gorm:"foreignKey:ActivityID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"points,omitempty"`
}
