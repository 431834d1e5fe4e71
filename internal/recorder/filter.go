package recorder

import (
	"math"

	"runaway_tracker/internal/models"
)

// RejectReason says why a sample was dropped. Empty means accepted.
type RejectReason string

const (
	RejectInvalid  RejectReason = "invalid"
	RejectAccuracy RejectReason = "accuracy"
	RejectStale    RejectReason = "stale"
	RejectMovement RejectReason = "movement"
)

// Verdict is the outcome of filtering one sample.
type Verdict struct {
	Accepted bool
	Reason   RejectReason
	Point    models.RoutePoint // set when Accepted
	Delta    float64           // meters from the previous accepted point

	// Speed is the instantaneous speed estimate in m/s. It is also set for
	// movement rejections so a stationary runner can still be observed.
	Speed float64
}

// SampleFilter drops noisy fixes and turns good ones into RoutePoints.
// It is not safe for concurrent use; the Recorder serializes access.
type SampleFilter struct {
	cfg    Config
	last   *models.RoutePoint
	anchor *models.RoutePoint

	// prev is the most recent usable fix, accepted or not. Derived speeds
	// are measured against it so a long gap since the last accepted point
	// does not dilute them.
	prev *models.RoutePoint
}

func NewSampleFilter(cfg Config) *SampleFilter {
	return &SampleFilter{cfg: cfg}
}

// Filter checks s against the last accepted point. fallbackSpeed is used when
// neither the reported nor the derived speed is usable.
func (f *SampleFilter) Filter(s models.Sample, fallbackSpeed float64) Verdict {
	if reason := f.checkQuality(s); reason != "" {
		return Verdict{Reason: reason}
	}

	// the first point of a segment is always accepted
	if f.last == nil {
		var delta float64
		anchor := f.anchor
		if anchor != nil && s.Timestamp.Before(anchor.Timestamp) {
			anchor = nil
		}
		if anchor != nil {
			delta = Distance(anchor.Latitude, anchor.Longitude, s.Latitude, s.Longitude)
		}
		point := f.newPoint(s, f.speedFor(anchor, s, delta, fallbackSpeed))
		f.last = &point
		f.prev = &point
		f.anchor = nil
		return Verdict{Accepted: true, Point: point, Delta: delta, Speed: point.Speed}
	}

	if s.Timestamp.Before(f.last.Timestamp) {
		return Verdict{Reason: RejectStale}
	}

	dist := Distance(f.last.Latitude, f.last.Longitude, s.Latitude, s.Longitude)
	speed := f.speedSincePrev(s, fallbackSpeed)
	if dist < f.cfg.MinMovement {
		f.remember(s, speed)
		return Verdict{Reason: RejectMovement, Delta: dist, Speed: speed}
	}

	point := f.newPoint(s, speed)
	f.last = &point
	f.prev = &point
	return Verdict{Accepted: true, Point: point, Delta: dist, Speed: speed}
}

// Probe estimates the speed of s without accepting it. The fix still becomes
// the reference for the next derived speed.
func (f *SampleFilter) Probe(s models.Sample) (float64, bool) {
	if f.checkQuality(s) != "" {
		return 0, false
	}
	speed := f.speedSincePrev(s, 0)
	f.remember(s, speed)
	return speed, true
}

// Anchor sets the position the segment starts from. The first accepted point
// measures its distance from the anchor; the anchor itself is not a RoutePoint.
func (f *SampleFilter) Anchor(s models.Sample) bool {
	if f.checkQuality(s) != "" {
		return false
	}
	point := f.newPoint(s, 0)
	f.anchor = &point
	return true
}

// Reset forgets the last accepted point and any anchor; the next good sample
// starts a new segment.
func (f *SampleFilter) Reset() {
	f.last = nil
	f.anchor = nil
	f.prev = nil
}

func (f *SampleFilter) speedSincePrev(s models.Sample, fallback float64) float64 {
	var dist float64
	if f.prev != nil {
		dist = Distance(f.prev.Latitude, f.prev.Longitude, s.Latitude, s.Longitude)
	}
	return f.speedFor(f.prev, s, dist, fallback)
}

// remember keeps s as the speed reference unless it is older than the one held.
func (f *SampleFilter) remember(s models.Sample, speed float64) {
	if f.prev != nil && s.Timestamp.Before(f.prev.Timestamp) {
		return
	}
	point := f.newPoint(s, speed)
	f.prev = &point
}

func (f *SampleFilter) checkQuality(s models.Sample) RejectReason {
	if !validCoordinate(s.Latitude, s.Longitude) || s.Timestamp.IsZero() {
		return RejectInvalid
	}
	if s.Accuracy <= 0 || s.Accuracy > f.cfg.MaxAccuracy || math.IsNaN(s.Accuracy) {
		return RejectAccuracy
	}
	return ""
}

// speedFor prefers the reported speed, then distance over time since prev,
// then the fallback.
func (f *SampleFilter) speedFor(prev *models.RoutePoint, s models.Sample, dist, fallback float64) float64 {
	if f.plausible(s.Speed) {
		return s.Speed
	}
	if prev != nil {
		dt := s.Timestamp.Sub(prev.Timestamp).Seconds()
		if dt > 0 {
			if derived := dist / dt; f.plausible(derived) {
				return derived
			}
		}
	}
	return math.Max(fallback, 0)
}

func (f *SampleFilter) plausible(v float64) bool {
	return v >= 0 && v < f.cfg.MaxPlausibleSpeed
}

func (f *SampleFilter) newPoint(s models.Sample, speed float64) models.RoutePoint {
	return models.RoutePoint{
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Altitude:  s.Altitude,
		Speed:     math.Max(speed, 0),
		Accuracy:  s.Accuracy,
		Timestamp: s.Timestamp,
	}
}
