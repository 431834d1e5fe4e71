package position

import (
	"sync"

	"github.com/sirupsen/logrus"

	"runaway_tracker/internal/metrics"
	"runaway_tracker/internal/models"
	"runaway_tracker/internal/recorder"
)

// DeviceSource is the position source and permission authority backed by the
// phone's websocket. The phone pushes every fix it gets; the source only lets
// them through while the recorder has it started and not paused.
type DeviceSource struct {
	mu         sync.Mutex
	samples    chan models.Sample
	started    bool
	paused     bool
	authorized bool
	last       *models.Sample
	watchers   []func(bool)
	log        *logrus.Entry
}

// NewDeviceSource creates a stopped, unauthorized source with the given channel buffer.
func NewDeviceSource(buffer int) *DeviceSource {
	if buffer < 1 {
		buffer = 1
	}
	return &DeviceSource{
		samples: make(chan models.Sample, buffer),
		log:     logrus.WithField("component", "device_source"),
	}
}

func (d *DeviceSource) Samples() <-chan models.Sample {
	return d.samples
}

func (d *DeviceSource) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.authorized {
		return recorder.ErrPermissionDenied
	}
	d.started = true
	d.paused = false
	d.log.Info("Device position feed started.")
	return nil
}

func (d *DeviceSource) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	d.paused = false
	d.log.Info("Device position feed stopped.")
}

func (d *DeviceSource) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
}

func (d *DeviceSource) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = false
}

// Authorized reports the last permission status the device sent.
func (d *DeviceSource) Authorized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.authorized
}

// SetAuthorized records a permission change and notifies watchers when it differs.
func (d *DeviceSource) SetAuthorized(ok bool) {
	d.mu.Lock()
	changed := d.authorized != ok
	d.authorized = ok
	watchers := d.watchers
	running := d.started
	d.mu.Unlock()

	if !changed {
		return
	}
	entry := d.log.WithField("authorized", ok)
	if !ok && running {
		entry.Warn("Location permission revoked during recording.")
	} else {
		entry.Info("Location permission changed.")
	}
	for _, fn := range watchers {
		fn(ok)
	}
}

// OnPermissionChange registers fn for permission status changes.
func (d *DeviceSource) OnPermissionChange(fn func(bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.watchers = append(d.watchers, fn)
}

// Push offers one fix from the device. It returns false when the sample was
// not forwarded (feed inactive or buffer full).
func (d *DeviceSource) Push(s models.Sample) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	last := s
	d.last = &last
	if !d.started || d.paused {
		return false
	}

	select {
	case d.samples <- s:
		return true
	default:
		metrics.DroppedMessages.WithLabelValues("device_samples").Inc()
		d.log.Warn("Sample channel full, dropping fix.")
		return false
	}
}

// LastKnown returns the most recent fix pushed, forwarded or not.
func (d *DeviceSource) LastKnown() (models.Sample, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return models.Sample{}, false
	}
	return *d.last, true
}
