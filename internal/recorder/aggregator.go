package recorder

import "time"

// Aggregator keeps cumulative distance and the smoothed speeds derived from
// accepted samples. Display values are computed from it on demand.
type Aggregator struct {
	window   int
	speeds   []float64
	distance float64
}

func NewAggregator(window int) *Aggregator {
	if window < 1 {
		window = 1
	}
	return &Aggregator{window: window, speeds: make([]float64, 0, window)}
}

// Add records one accepted sample.
func (a *Aggregator) Add(delta, speed float64) {
	if delta > 0 {
		a.distance += delta
	}
	if len(a.speeds) == a.window {
		copy(a.speeds, a.speeds[1:])
		a.speeds = a.speeds[:a.window-1]
	}
	a.speeds = append(a.speeds, speed)
}

// Distance is the cumulative distance in meters.
func (a *Aggregator) Distance() float64 {
	return a.distance
}

// CurrentSpeed is the mean of the speed window, 0 before the first sample.
func (a *Aggregator) CurrentSpeed() float64 {
	if len(a.speeds) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range a.speeds {
		sum += v
	}
	return sum / float64(len(a.speeds))
}

// AverageSpeed is min(window mean, distance / elapsed). The second term keeps
// a short burst from inflating the lifetime average.
func (a *Aggregator) AverageSpeed(elapsed time.Duration) float64 {
	windowed := a.CurrentSpeed()
	if elapsed <= 0 {
		return windowed
	}
	overall := a.distance / elapsed.Seconds()
	if overall < windowed {
		return overall
	}
	return windowed
}

func (a *Aggregator) Reset() {
	a.speeds = a.speeds[:0]
	a.distance = 0
}
