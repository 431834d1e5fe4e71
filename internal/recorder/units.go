package recorder

// DistanceUnit is the unit distances and paces are displayed in.
type DistanceUnit string

const (
	Kilometers DistanceUnit = "km"
	Miles      DistanceUnit = "mi"
)

const (
	metersPerKilometer = 1000.0
	metersPerMile      = 1609.344

	// below this a pace is meaningless (over 2.7 hours per km)
	minPaceSpeed = 0.1
)

// Meters returns the length of one unit in meters. Unknown units fall back to kilometers.
func (u DistanceUnit) Meters() float64 {
	if u == Miles {
		return metersPerMile
	}
	return metersPerKilometer
}

// ParseDistanceUnit accepts "km" or "mi"; anything else is kilometers.
func ParseDistanceUnit(s string) DistanceUnit {
	if DistanceUnit(s) == Miles {
		return Miles
	}
	return Kilometers
}

// DisplayDistance converts meters into u.
func DisplayDistance(meters float64, u DistanceUnit) float64 {
	return meters / u.Meters()
}

// Pace converts a speed in m/s into minutes per unit. Returns 0 when not moving.
func Pace(speed float64, u DistanceUnit) float64 {
	if speed < minPaceSpeed {
		return 0
	}
	return u.Meters() / speed / 60
}

// In returns m with its display distance and paces expressed in u.
func (m LiveMetrics) In(u DistanceUnit) LiveMetrics {
	m.Unit = u
	m.DisplayDist = DisplayDistance(m.Distance, u)
	m.CurrentPace = Pace(m.CurrentSpeed, u)
	m.AveragePace = Pace(m.AverageSpeed, u)
	return m
}
