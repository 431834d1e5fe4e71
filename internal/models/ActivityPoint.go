package models

import (
	"time"
)

// ActivityPoint is one stored RoutePoint of a persisted activity.
type ActivityPoint struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ActivityID string    `gorm:"index;type:varchar(36)" json:"activity_id"`
	Seq        int       `json:"seq"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy"` // GPS accuracy in meters
	Speed      float64   `json:"speed"`    // m/s
	Altitude   float64   `json:"altitude"` // meters
	Timestamp  time.Time `json:"timestamp"`
}
