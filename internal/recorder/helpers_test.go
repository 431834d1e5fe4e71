package recorder

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"runaway_tracker/internal/models"
)

var base = time.Date(2026, 4, 12, 7, 30, 0, 0, time.UTC)

const (
	originLat = 47.3769
	originLon = 8.5417
)

// northOf returns the latitude that lies m meters north of lat.
func northOf(lat, m float64) float64 {
	return lat + m/earthRadius*180/math.Pi
}

func sampleAt(offset time.Duration, metersNorth, speed float64) models.Sample {
	return models.Sample{
		Latitude:  northOf(originLat, metersNorth),
		Longitude: originLon,
		Altitude:  410,
		Speed:     speed,
		Accuracy:  5,
		Timestamp: base.Add(offset),
	}
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: base}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(offset time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = base.Add(offset)
}

type fakeSource struct {
	mu       sync.Mutex
	ch       chan models.Sample
	started  int
	paused   int
	resumed  int
	stopped  int
	startErr error
	last     *models.Sample
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan models.Sample, 16)}
}

func (s *fakeSource) Samples() <-chan models.Sample { return s.ch }

func (s *fakeSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started++
	return nil
}

func (s *fakeSource) Stop()   { s.mu.Lock(); s.stopped++; s.mu.Unlock() }
func (s *fakeSource) Pause()  { s.mu.Lock(); s.paused++; s.mu.Unlock() }
func (s *fakeSource) Resume() { s.mu.Lock(); s.resumed++; s.mu.Unlock() }

func (s *fakeSource) LastKnown() (models.Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return models.Sample{}, false
	}
	return *s.last, true
}

type fakePermissions struct {
	mu         sync.Mutex
	authorized bool
}

func (p *fakePermissions) Authorized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authorized
}

func (p *fakePermissions) Set(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authorized = v
}

type fakeSink struct {
	mu        sync.Mutex
	events    []string
	started   []models.SessionInfo
	snapshots []models.TelemetrySnapshot
	summaries []models.SummarySnapshot
}

func (s *fakeSink) SessionStarted(info models.SessionInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "started")
	s.started = append(s.started, info)
}

func (s *fakeSink) Publish(snapshot models.TelemetrySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "telemetry")
	s.snapshots = append(s.snapshots, snapshot)
}

func (s *fakeSink) SessionEnded(summary models.SummarySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "summary")
	s.summaries = append(s.summaries, summary)
}

func (s *fakeSink) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *fakeSink) Snapshots() []models.TelemetrySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TelemetrySnapshot(nil), s.snapshots...)
}

func (s *fakeSink) Summaries() []models.SummarySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SummarySnapshot(nil), s.summaries...)
}

var errStoreDown = errors.New("store unavailable")

type fakePersister struct {
	mu       sync.Mutex
	err      error
	sessions []models.RecordingSession
}

func (p *fakePersister) Persist(_ context.Context, session models.RecordingSession) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.sessions = append(p.sessions, session)
	return "activity-" + session.ID, nil
}

type fixture struct {
	rec       *Recorder
	clock     *testClock
	source    *fakeSource
	perms     *fakePermissions
	sink      *fakeSink
	persister *fakePersister
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TelemetryInterval = time.Hour // tests that need ticks override this
	for _, m := range mutate {
		m(&cfg)
	}
	f := &fixture{
		clock:     newTestClock(),
		source:    newFakeSource(),
		perms:     &fakePermissions{authorized: true},
		sink:      &fakeSink{},
		persister: &fakePersister{},
	}
	f.rec = New(cfg, f.source, f.perms, f.sink, f.persister, WithClock(f.clock.Now))
	t.Cleanup(f.rec.Close)
	return f
}

// at moves the clock and feeds a sample stamped with the same time.
func (f *fixture) at(offset time.Duration, metersNorth, speed float64) {
	f.clock.Set(offset)
	f.rec.HandleSample(sampleAt(offset, metersNorth, speed))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}
