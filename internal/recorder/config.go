package recorder

import "time"

// Config holds the pipeline thresholds.
type Config struct {
	// Sample filter
	MaxAccuracy       float64 // meters - fixes with worse horizontal accuracy are noise
	MinMovement       float64 // meters - jitter guard between accepted points
	MaxPlausibleSpeed float64 // m/s - reported speeds at or above this are distrusted

	// Aggregator
	SpeedWindow int // accepted samples in the smoothing window

	// Autopause
	AutopauseEnabled bool
	AutopauseSpeed   float64       // m/s
	AutopauseDelay   time.Duration // sustained low speed before pausing

	// Telemetry
	TelemetryInterval time.Duration
	Unit              DistanceUnit
}

// DefaultConfig returns the thresholds used for running and cycling.
func DefaultConfig() Config {
	return Config{
		MaxAccuracy:       20.0,
		MinMovement:       5.0,
		MaxPlausibleSpeed: 20.0, // 72 km/h
		SpeedWindow:       5,
		AutopauseEnabled:  true,
		AutopauseSpeed:    0.5,
		AutopauseDelay:    10 * time.Second,
		TelemetryInterval: time.Second,
		Unit:              Kilometers,
	}
}
