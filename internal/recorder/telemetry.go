package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"runaway_tracker/internal/metrics"
	"runaway_tracker/internal/models"
)

// Broadcaster pushes a telemetry snapshot to the display sink on a fixed
// interval. Each session gets its own ticker goroutine; starting a new one
// always stops the previous one first.
type Broadcaster struct {
	interval time.Duration
	sink     DisplaySink
	read     func() (models.TelemetrySnapshot, bool)
	log      *logrus.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBroadcaster creates a stopped broadcaster. read returns false when there
// is nothing to broadcast.
func NewBroadcaster(interval time.Duration, sink DisplaySink, read func() (models.TelemetrySnapshot, bool), log *logrus.Entry) *Broadcaster {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = logrus.WithField("component", "telemetry")
	}
	return &Broadcaster{interval: interval, sink: sink, read: read, log: log}
}

// Begin announces a new session and starts ticking.
func (b *Broadcaster) Begin(info models.SessionInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopLocked()
	b.sink.SessionStarted(info)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	b.cancel, b.done = cancel, done
	go b.loop(ctx, done)

	b.log.WithFields(logrus.Fields{
		"session_id": info.SessionID,
		"interval":   b.interval.String(),
	}).Info("Telemetry broadcast started.")
}

// Finish stops ticking and delivers the final summary. Nothing is published after it.
func (b *Broadcaster) Finish(summary models.SummarySnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopLocked()
	b.sink.SessionEnded(summary)
	b.log.WithField("session_id", summary.SessionID).Info("Telemetry broadcast finished with summary.")
}

// Stop halts the ticker without a summary (discard, shutdown).
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
}

// Running reports whether a ticker goroutine is active.
func (b *Broadcaster) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancel != nil
}

func (b *Broadcaster) stopLocked() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
	b.cancel, b.done = nil, nil
}

func (b *Broadcaster) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot, ok := b.read()
			if !ok {
				continue
			}
			// cancellation may have raced the tick
			if ctx.Err() != nil {
				return
			}
			b.sink.Publish(snapshot)
			metrics.TelemetryPublished.Inc()
		}
	}
}
