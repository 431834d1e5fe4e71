package models

import "time"

// SessionInfo is sent to the live display once when a session begins.
type SessionInfo struct {
	SessionID    string       `json:"session_id"`
	Name         string       `json:"name"`
	ActivityType ActivityType `json:"activity_type"`
	StartTime    time.Time    `json:"start_time"`
}

// TelemetrySnapshot is the periodic live summary pushed while a session is active.
// Pace values are minutes per display unit; 0 means no pace.
type TelemetrySnapshot struct {
	SessionID          string        `json:"session_id"`
	ElapsedTime        time.Duration `json:"elapsed_time"`
	Distance           float64       `json:"distance"` // meters
	CurrentPace        float64       `json:"current_pace"`
	AveragePace        float64       `json:"average_pace"`
	IsPausedForDisplay bool          `json:"is_paused"`
	Timestamp          time.Time     `json:"timestamp"`
}

// SummarySnapshot is delivered exactly once when a session completes. It has no
// current pace because motion has stopped.
type SummarySnapshot struct {
	SessionID   string        `json:"session_id"`
	ElapsedTime time.Duration `json:"elapsed_time"`
	Distance    float64       `json:"distance"`
	AveragePace float64       `json:"average_pace"`
	PointCount  int           `json:"point_count"`
	Timestamp   time.Time     `json:"timestamp"`
}
