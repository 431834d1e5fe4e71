package recorder

import (
	"math"
	"testing"
	"time"
)

func TestAggregatorWindow(t *testing.T) {
	a := NewAggregator(3)
	if a.CurrentSpeed() != 0 {
		t.Fatalf("empty aggregator must report 0")
	}
	for _, v := range []float64{1, 2, 3, 10} {
		a.Add(5, v)
	}
	// window holds 2, 3, 10
	if got := a.CurrentSpeed(); math.Abs(got-5) > 1e-9 {
		t.Fatalf("current speed = %v, want 5", got)
	}
	if a.Distance() != 20 {
		t.Fatalf("distance = %v, want 20", a.Distance())
	}
}

func TestAggregatorAverageSpeedIsConservative(t *testing.T) {
	a := NewAggregator(5)
	for i := 0; i < 5; i++ {
		a.Add(20, 5)
	}

	cases := []struct {
		elapsed time.Duration
		want    float64
	}{
		{0, 5},                  // no elapsed time: window mean
		{100 * time.Second, 1},  // 100 m / 100 s is lower than the window
		{10 * time.Second, 5},   // 100 m / 10 s = 10 is higher; window wins
	}
	for _, tc := range cases {
		if got := a.AverageSpeed(tc.elapsed); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("elapsed %v: average = %v, want %v", tc.elapsed, got, tc.want)
		}
	}
}

func TestAggregatorIgnoresNegativeDelta(t *testing.T) {
	a := NewAggregator(5)
	a.Add(10, 1)
	a.Add(-4, 1)
	if a.Distance() != 10 {
		t.Fatalf("distance must never decrease, got %v", a.Distance())
	}
	a.Reset()
	if a.Distance() != 0 || a.CurrentSpeed() != 0 {
		t.Fatalf("reset did not clear")
	}
}
