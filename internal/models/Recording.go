package models

import (
	"time"
)

// RecordingState is the lifecycle position of the live workout.
type RecordingState string

const (
	StateReady     RecordingState = "ready"
	StateRecording RecordingState = "recording"
	StatePaused    RecordingState = "paused"
	StateCompleted RecordingState = "completed"
)

// ActivityType tags what kind of workout is being recorded.
type ActivityType string

const (
	ActivityRun  ActivityType = "run"
	ActivityWalk ActivityType = "walk"
	ActivityRide ActivityType = "ride"
	ActivityHike ActivityType = "hike"
)

// Valid reports whether t is one of the known activity types.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityRun, ActivityWalk, ActivityRide, ActivityHike:
		return true
	}
	return false
}

// Sample is one raw reading from the position source, before any filtering.
// Speed is the device-reported speed in m/s; negative means "unknown".
type Sample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`  // meters
	Speed     float64   `json:"speed"`     // m/s
	Accuracy  float64   `json:"accuracy"`  // horizontal, meters
	Timestamp time.Time `json:"timestamp"`
}

// RoutePoint is an accepted GPS fix. Values are never modified after creation.
type RoutePoint struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`
	Speed     float64   `json:"speed"` // m/s, never negative
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordingSession is the in-progress or completed workout.
type RecordingSession struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	ActivityType   ActivityType  `json:"activity_type"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        *time.Time    `json:"end_time,omitempty"`
	Distance       float64       `json:"distance"` // meters
	Route          []RoutePoint  `json:"route"`
	PausedDuration time.Duration `json:"paused_duration"`
}

// ElapsedTime is the moving time of the session: wall time since start, up to
// EndTime if set, minus accumulated pauses. Never negative.
func (s *RecordingSession) ElapsedTime(now time.Time) time.Duration {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	elapsed := end.Sub(s.StartTime) - s.PausedDuration
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Clone returns a deep copy so readers never share the route slice with the owner.
func (s *RecordingSession) Clone() *RecordingSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.EndTime != nil {
		end := *s.EndTime
		c.EndTime = &end
	}
	c.Route = make([]RoutePoint, len(s.Route))
	copy(c.Route, s.Route)
	return &c
}
