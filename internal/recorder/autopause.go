package recorder

import (
	"time"

	"runaway_tracker/internal/models"
)

// AutopauseAction is what the detector asks the state machine to do.
type AutopauseAction int

const (
	AutopauseNone AutopauseAction = iota
	AutopausePause
	AutopauseResume
)

func (a AutopauseAction) String() string {
	switch a {
	case AutopausePause:
		return "pause"
	case AutopauseResume:
		return "resume"
	}
	return "none"
}

// AutopauseDetector decides when sustained low speed should pause a recording
// and when movement should resume it. Pausing waits for the full delay; resuming
// is immediate.
type AutopauseDetector struct {
	threshold float64
	delay     time.Duration

	lowSince time.Time
	tracking bool
}

func NewAutopauseDetector(threshold float64, delay time.Duration) *AutopauseDetector {
	return &AutopauseDetector{threshold: threshold, delay: delay}
}

// Evaluate observes one speed reading taken at the given time.
func (d *AutopauseDetector) Evaluate(speed float64, state models.RecordingState, autoPaused bool, at time.Time) AutopauseAction {
	low := speed < d.threshold

	switch {
	case state == models.StateRecording:
		if !low {
			d.Reset()
			return AutopauseNone
		}
		if !d.tracking {
			d.lowSince = at
			d.tracking = true
			return AutopauseNone
		}
		if at.Sub(d.lowSince) >= d.delay {
			d.Reset()
			return AutopausePause
		}
		return AutopauseNone

	case state == models.StatePaused && autoPaused:
		if low {
			return AutopauseNone
		}
		d.Reset()
		return AutopauseResume
	}

	d.Reset()
	return AutopauseNone
}

// Reset puts the low-speed timer back to "not started".
func (d *AutopauseDetector) Reset() {
	d.lowSince = time.Time{}
	d.tracking = false
}

// Tracking reports whether the low-speed timer is running.
func (d *AutopauseDetector) Tracking() bool {
	return d.tracking
}
