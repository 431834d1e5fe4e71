package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"runaway_tracker/internal/metrics"
	"runaway_tracker/internal/models"
)

// a start fix older than this is not trusted as the session origin
const anchorMaxAge = 30 * time.Second

// Trigger says what caused a state transition.
type Trigger string

const (
	TriggerUser      Trigger = "user"
	TriggerAutopause Trigger = "autopause"
	TriggerPersist   Trigger = "persist"
)

// StateChange is delivered to listeners after every applied transition.
type StateChange struct {
	From      models.RecordingState
	To        models.RecordingState
	Trigger   Trigger
	SessionID string
	At        time.Time
}

// LiveMetrics are the display values of the current session.
type LiveMetrics struct {
	State        models.RecordingState `json:"state"`
	AutoPaused   bool                  `json:"auto_paused"`
	ElapsedTime  time.Duration         `json:"elapsed_time"`
	Distance     float64               `json:"distance"`      // meters
	DisplayDist  float64               `json:"display_distance"`
	Unit         DistanceUnit          `json:"unit"`
	CurrentSpeed float64               `json:"current_speed"` // m/s
	AverageSpeed float64               `json:"average_speed"` // m/s
	CurrentPace  float64               `json:"current_pace"`  // min per unit
	AveragePace  float64               `json:"average_pace"`
}

// Capabilities mirrors the Can* predicates for clients.
type Capabilities struct {
	CanStart   bool `json:"can_start"`
	CanPause   bool `json:"can_pause"`
	CanResume  bool `json:"can_resume"`
	CanStop    bool `json:"can_stop"`
	CanDiscard bool `json:"can_discard"`
	CanPersist bool `json:"can_persist"`
}

// Snapshot is one consistent view of the recorder.
type Snapshot struct {
	State        models.RecordingState
	AutoPaused   bool
	Capabilities Capabilities
	Metrics      LiveMetrics
	Session      *models.RecordingSession
}

// Recorder owns the live recording: state, session, filter, aggregator and
// autopause detector. Illegal commands are refused and logged, never returned
// as errors; callers check the Can* predicates.
//
// Lock order is cmdMu then mu. Samples and telemetry reads only take mu, and
// nothing blocking runs while mu is held.
type Recorder struct {
	cfg Config
	log *logrus.Entry
	now Clock

	source      PositionSource
	permissions PermissionAuthority
	persister   ActivityPersister
	broadcaster *Broadcaster

	cmdMu sync.Mutex
	mu    sync.Mutex

	state      models.RecordingState
	session    *models.RecordingSession
	pauseStart time.Time
	autoPaused bool

	filter    *SampleFilter
	agg       *Aggregator
	detector  *AutopauseDetector
	listeners []func(StateChange)
}

// Option customises a Recorder.
type Option func(*Recorder)

// WithClock replaces time.Now.
func WithClock(c Clock) Option {
	return func(r *Recorder) { r.now = c }
}

// WithLogger sets the logger entry.
func WithLogger(l *logrus.Entry) Option {
	return func(r *Recorder) { r.log = l }
}

func New(cfg Config, source PositionSource, permissions PermissionAuthority, sink DisplaySink, persister ActivityPersister, opts ...Option) *Recorder {
	r := &Recorder{
		cfg:         cfg,
		log:         logrus.WithField("component", "recorder"),
		now:         time.Now,
		source:      source,
		permissions: permissions,
		persister:   persister,
		state:       models.StateReady,
		filter:      NewSampleFilter(cfg),
		agg:         NewAggregator(cfg.SpeedWindow),
		detector:    NewAutopauseDetector(cfg.AutopauseSpeed, cfg.AutopauseDelay),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.broadcaster = NewBroadcaster(cfg.TelemetryInterval, sink, r.telemetry, r.log.WithField("component", "telemetry"))
	return r
}

// OnStateChange registers fn to be called after each transition, outside any lock.
func (r *Recorder) OnStateChange(fn func(StateChange)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Run feeds samples from the position source until ctx is done or the
// source closes its channel.
func (r *Recorder) Run(ctx context.Context) {
	samples := r.source.Samples()
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-samples:
			if !ok {
				return
			}
			r.HandleSample(s)
		}
	}
}

// Close stops the telemetry ticker.
func (r *Recorder) Close() {
	r.broadcaster.Stop()
}

// --- Capability predicates ---

func (r *Recorder) State() models.RecordingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Recorder) IsAutoPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.autoPaused
}

func (r *Recorder) CanStart() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canStartLocked()
}

func (r *Recorder) CanPause() bool {
	return r.State() == models.StateRecording
}

func (r *Recorder) CanResume() bool {
	return r.State() == models.StatePaused
}

func (r *Recorder) CanStop() bool {
	s := r.State()
	return s == models.StateRecording || s == models.StatePaused
}

func (r *Recorder) CanDiscard() bool {
	return r.State() == models.StateCompleted
}

func (r *Recorder) CanPersist() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == models.StateCompleted && r.session != nil && len(r.session.Route) > 0
}

func (r *Recorder) Capabilities() Capabilities {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capabilitiesLocked()
}

func (r *Recorder) capabilitiesLocked() Capabilities {
	return Capabilities{
		CanStart:   r.canStartLocked(),
		CanPause:   r.state == models.StateRecording,
		CanResume:  r.state == models.StatePaused,
		CanStop:    r.state == models.StateRecording || r.state == models.StatePaused,
		CanDiscard: r.state == models.StateCompleted,
		CanPersist: r.state == models.StateCompleted && r.session != nil && len(r.session.Route) > 0,
	}
}

func (r *Recorder) canStartLocked() bool {
	return r.state == models.StateReady && r.permissions.Authorized()
}

// Session returns a copy of the live session, or nil in ready.
func (r *Recorder) Session() *models.RecordingSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Clone()
}

// Snapshot reads state, capabilities, metrics and session under one lock.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		State:        r.state,
		AutoPaused:   r.autoPaused,
		Capabilities: r.capabilitiesLocked(),
		Metrics:      r.metricsLocked(),
		Session:      r.session.Clone(),
	}
}

// Metrics returns the current display values.
func (r *Recorder) Metrics() LiveMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metricsLocked()
}

func (r *Recorder) metricsLocked() LiveMetrics {
	m := LiveMetrics{State: r.state, AutoPaused: r.autoPaused, Unit: r.cfg.Unit}
	if r.session == nil {
		return m
	}
	elapsed := r.elapsedLocked(r.now())
	m.ElapsedTime = elapsed
	m.Distance = r.agg.Distance()
	m.DisplayDist = DisplayDistance(m.Distance, r.cfg.Unit)
	m.CurrentSpeed = r.agg.CurrentSpeed()
	m.AverageSpeed = r.agg.AverageSpeed(elapsed)
	m.CurrentPace = Pace(m.CurrentSpeed, r.cfg.Unit)
	m.AveragePace = Pace(m.AverageSpeed, r.cfg.Unit)
	return m
}

// --- Transitions ---

// Start begins a new session from ready. It returns false without error when
// the recorder is not ready, and ErrPermissionDenied when location access is
// not authorized.
func (r *Recorder) Start(name string, kind models.ActivityType) (bool, error) {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	r.mu.Lock()
	if r.state != models.StateReady {
		r.refuseLocked("start")
		r.mu.Unlock()
		return false, nil
	}
	if !r.permissions.Authorized() {
		r.mu.Unlock()
		r.log.Warn("Start refused: location permission not granted.")
		return false, ErrPermissionDenied
	}
	r.mu.Unlock()

	if err := r.source.Start(); err != nil {
		return false, fmt.Errorf("start position source: %w", err)
	}

	if !kind.Valid() {
		kind = models.ActivityRun
	}

	r.mu.Lock()
	now := r.now()
	if name == "" {
		name = defaultName(kind, now)
	}
	r.session = &models.RecordingSession{
		ID:           uuid.NewString(),
		Name:         name,
		ActivityType: kind,
		StartTime:    now,
		Route:        []models.RoutePoint{},
	}
	r.filter.Reset()
	r.anchorLocked(now)
	r.agg.Reset()
	r.detector.Reset()
	r.autoPaused = false
	r.pauseStart = time.Time{}
	change := r.transitionLocked(models.StateRecording, TriggerUser, now)
	info := models.SessionInfo{
		SessionID:    r.session.ID,
		Name:         r.session.Name,
		ActivityType: r.session.ActivityType,
		StartTime:    r.session.StartTime,
	}
	listeners := r.listeners
	r.mu.Unlock()

	r.broadcaster.Begin(info)
	notify(listeners, change)
	return true, nil
}

// Pause manually pauses a recording session. While auto-paused it is a no-op
// and the running pause interval is left alone.
func (r *Recorder) Pause() bool {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	r.mu.Lock()
	if r.state != models.StateRecording {
		r.refuseLocked("pause")
		r.mu.Unlock()
		return false
	}
	change := r.pauseLocked(r.now(), TriggerUser)
	listeners := r.listeners
	r.mu.Unlock()

	r.source.Pause()
	notify(listeners, change)
	return true
}

// Resume continues a paused session, manual or automatic.
func (r *Recorder) Resume() bool {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	r.mu.Lock()
	if r.state != models.StatePaused {
		r.refuseLocked("resume")
		r.mu.Unlock()
		return false
	}
	wasAuto := r.autoPaused
	change := r.resumeLocked(r.now(), TriggerUser)
	listeners := r.listeners
	r.mu.Unlock()

	// an auto-pause never paused the feed
	if !wasAuto {
		r.source.Resume()
	}
	notify(listeners, change)
	return true
}

// Stop finalizes the session. Any open pause interval is counted once.
func (r *Recorder) Stop() bool {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	r.mu.Lock()
	if r.state != models.StateRecording && r.state != models.StatePaused {
		r.refuseLocked("stop")
		r.mu.Unlock()
		return false
	}
	now := r.now()
	r.closePauseLocked(now)
	end := now
	r.session.EndTime = &end
	r.session.Distance = r.agg.Distance()
	r.autoPaused = false
	r.detector.Reset()

	elapsed := r.session.ElapsedTime(now)
	summary := models.SummarySnapshot{
		SessionID:   r.session.ID,
		ElapsedTime: elapsed,
		Distance:    r.session.Distance,
		AveragePace: Pace(r.agg.AverageSpeed(elapsed), r.cfg.Unit),
		PointCount:  len(r.session.Route),
		Timestamp:   now,
	}
	change := r.transitionLocked(models.StateCompleted, TriggerUser, now)
	listeners := r.listeners
	r.mu.Unlock()

	r.source.Stop()
	r.broadcaster.Finish(summary)
	notify(listeners, change)

	r.log.WithFields(logrus.Fields{
		"session_id":   summary.SessionID,
		"distance_m":   fmt.Sprintf("%.1f", summary.Distance),
		"elapsed":      summary.ElapsedTime.String(),
		"point_count":  summary.PointCount,
		"average_pace": fmt.Sprintf("%.2f", summary.AveragePace),
	}).Info("Recording session completed.")
	return true
}

// Discard throws away a completed session and returns to ready.
func (r *Recorder) Discard() bool {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	r.mu.Lock()
	if r.state != models.StateCompleted {
		r.refuseLocked("discard")
		r.mu.Unlock()
		return false
	}
	change := r.clearLocked(TriggerUser)
	listeners := r.listeners
	r.mu.Unlock()

	notify(listeners, change)
	return true
}

// Persist hands the completed session to the persister. On success the
// recorder returns to ready; on failure it stays completed so the hand-off
// can be retried.
func (r *Recorder) Persist(ctx context.Context) (string, error) {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	r.mu.Lock()
	switch {
	case r.session == nil:
		r.mu.Unlock()
		return "", ErrNoSession
	case r.state != models.StateCompleted:
		r.mu.Unlock()
		return "", ErrNotCompleted
	case len(r.session.Route) == 0:
		r.mu.Unlock()
		return "", ErrEmptyRoute
	}
	snapshot := r.session.Clone()
	r.mu.Unlock()

	started := time.Now()
	id, err := r.persister.Persist(ctx, *snapshot)
	metrics.PersistDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.PersistTotal.WithLabelValues("error").Inc()
		r.log.WithError(err).WithField("session_id", snapshot.ID).Error("Activity hand-off failed; session kept for retry.")
		return "", fmt.Errorf("persist session %s: %w", snapshot.ID, err)
	}
	metrics.PersistTotal.WithLabelValues("ok").Inc()

	r.mu.Lock()
	change := r.clearLocked(TriggerPersist)
	listeners := r.listeners
	r.mu.Unlock()

	notify(listeners, change)
	r.log.WithFields(logrus.Fields{
		"session_id":  snapshot.ID,
		"activity_id": id,
	}).Info("Recording session persisted.")
	return id, nil
}

// HandleSample runs one raw sample through the pipeline.
func (r *Recorder) HandleSample(s models.Sample) {
	r.mu.Lock()

	var change *StateChange
	switch r.state {
	case models.StateRecording:
		change = r.recordSampleLocked(s)
	case models.StatePaused:
		if r.autoPaused {
			change = r.probeSampleLocked(s)
		} else {
			metrics.SamplesTotal.WithLabelValues("paused").Inc()
		}
	default:
		metrics.SamplesTotal.WithLabelValues("idle").Inc()
	}
	listeners := r.listeners
	r.mu.Unlock()

	if change != nil {
		notify(listeners, *change)
	}
}

func (r *Recorder) recordSampleLocked(s models.Sample) *StateChange {
	v := r.filter.Filter(s, r.agg.CurrentSpeed())

	var speed float64
	switch {
	case v.Accepted:
		r.agg.Add(v.Delta, v.Point.Speed)

		route := make([]models.RoutePoint, len(r.session.Route), len(r.session.Route)+1)
		copy(route, r.session.Route)
		r.session.Route = append(route, v.Point)
		r.session.Distance = r.agg.Distance()

		speed = r.agg.CurrentSpeed()
		metrics.SamplesTotal.WithLabelValues("accepted").Inc()
		metrics.DistanceMeters.Set(r.session.Distance)
	case v.Reason == RejectMovement:
		speed = v.Speed
		metrics.SamplesTotal.WithLabelValues(string(v.Reason)).Inc()
		r.log.WithFields(logrus.Fields{
			"reason":     v.Reason,
			"distance_m": fmt.Sprintf("%.2f", v.Delta),
		}).Debug("Sample rejected.")
	default:
		metrics.SamplesTotal.WithLabelValues(string(v.Reason)).Inc()
		r.log.WithFields(logrus.Fields{
			"reason":   v.Reason,
			"accuracy": s.Accuracy,
		}).Debug("Sample rejected.")
		return nil
	}

	if !r.cfg.AutopauseEnabled {
		return nil
	}
	if r.detector.Evaluate(speed, r.state, r.autoPaused, s.Timestamp) == AutopausePause {
		change := r.pauseLocked(r.now(), TriggerAutopause)
		return &change
	}
	return nil
}

// probeSampleLocked watches for movement while auto-paused. Nothing is added
// to the route until the session resumes.
func (r *Recorder) probeSampleLocked(s models.Sample) *StateChange {
	metrics.SamplesTotal.WithLabelValues("paused").Inc()
	speed, ok := r.filter.Probe(s)
	if !ok {
		return nil
	}
	if r.detector.Evaluate(speed, r.state, r.autoPaused, s.Timestamp) != AutopauseResume {
		return nil
	}
	change := r.resumeLocked(r.now(), TriggerAutopause)
	// the sample that showed movement opens the new segment
	r.recordSampleLocked(s)
	return &change
}

// anchorLocked seeds the filter with the fix the runner starts from, if the
// source has a recent one.
func (r *Recorder) anchorLocked(now time.Time) {
	lk, ok := r.source.(LastKnownPositioner)
	if !ok {
		return
	}
	s, ok := lk.LastKnown()
	if !ok || now.Sub(s.Timestamp) > anchorMaxAge || s.Timestamp.After(now.Add(anchorMaxAge)) {
		return
	}
	r.filter.Anchor(s)
}

func (r *Recorder) pauseLocked(now time.Time, trigger Trigger) StateChange {
	r.pauseStart = now
	r.autoPaused = trigger == TriggerAutopause
	r.detector.Reset()
	return r.transitionLocked(models.StatePaused, trigger, now)
}

func (r *Recorder) resumeLocked(now time.Time, trigger Trigger) StateChange {
	r.closePauseLocked(now)
	r.autoPaused = false
	r.detector.Reset()
	// distance covered while paused is not counted
	r.filter.Reset()
	return r.transitionLocked(models.StateRecording, trigger, now)
}

func (r *Recorder) closePauseLocked(now time.Time) {
	if r.state != models.StatePaused || r.pauseStart.IsZero() {
		return
	}
	if d := now.Sub(r.pauseStart); d > 0 {
		r.session.PausedDuration += d
	}
	r.pauseStart = time.Time{}
}

func (r *Recorder) clearLocked(trigger Trigger) StateChange {
	id := r.session.ID
	r.session = nil
	r.agg.Reset()
	r.filter.Reset()
	r.detector.Reset()
	r.autoPaused = false
	r.pauseStart = time.Time{}
	change := r.transitionLocked(models.StateReady, trigger, r.now())
	change.SessionID = id
	metrics.DistanceMeters.Set(0)
	return change
}

func (r *Recorder) transitionLocked(to models.RecordingState, trigger Trigger, at time.Time) StateChange {
	change := StateChange{From: r.state, To: to, Trigger: trigger, At: at}
	if r.session != nil {
		change.SessionID = r.session.ID
	}
	r.state = to

	metrics.Transitions.WithLabelValues(string(change.From), string(to), string(trigger)).Inc()
	if to == models.StateRecording || to == models.StatePaused {
		metrics.SessionActive.Set(1)
	} else {
		metrics.SessionActive.Set(0)
	}
	r.log.WithFields(logrus.Fields{
		"from":       change.From,
		"to":         to,
		"trigger":    trigger,
		"session_id": change.SessionID,
	}).Info("Recording state changed.")
	return change
}

func (r *Recorder) refuseLocked(op string) {
	metrics.GuardedNoops.WithLabelValues(op, string(r.state)).Inc()
	r.log.WithFields(logrus.Fields{
		"op":          op,
		"from_state":  r.state,
		"auto_paused": r.autoPaused,
	}).Warn("Command ignored in current state.")
}

// elapsedLocked is the display elapsed time; an open pause interval is
// excluded so the clock freezes while paused.
func (r *Recorder) elapsedLocked(now time.Time) time.Duration {
	elapsed := r.session.ElapsedTime(now)
	if r.state == models.StatePaused && !r.pauseStart.IsZero() {
		elapsed -= now.Sub(r.pauseStart)
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// telemetry is read by the broadcaster on every tick.
func (r *Recorder) telemetry() (models.TelemetrySnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil || (r.state != models.StateRecording && r.state != models.StatePaused) {
		return models.TelemetrySnapshot{}, false
	}
	now := r.now()
	elapsed := r.elapsedLocked(now)
	return models.TelemetrySnapshot{
		SessionID:          r.session.ID,
		ElapsedTime:        elapsed,
		Distance:           r.agg.Distance(),
		CurrentPace:        Pace(r.agg.CurrentSpeed(), r.cfg.Unit),
		AveragePace:        Pace(r.agg.AverageSpeed(elapsed), r.cfg.Unit),
		IsPausedForDisplay: r.state == models.StatePaused,
		Timestamp:          now,
	}, true
}

func notify(listeners []func(StateChange), change StateChange) {
	for _, fn := range listeners {
		fn(change)
	}
}

func defaultName(kind models.ActivityType, start time.Time) string {
	var part string
	switch h := start.Hour(); {
	case h < 5:
		part = "Night"
	case h < 12:
		part = "Morning"
	case h < 17:
		part = "Afternoon"
	case h < 21:
		part = "Evening"
	default:
		part = "Night"
	}
	var label string
	switch kind {
	case models.ActivityWalk:
		label = "Walk"
	case models.ActivityRide:
		label = "Ride"
	case models.ActivityHike:
		label = "Hike"
	default:
		label = "Run"
	}
	return part + " " + label
}
