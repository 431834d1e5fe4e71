package recorder

import (
	"context"
	"time"

	"runaway_tracker/internal/models"
)

// PositionSource delivers raw samples. The recorder starts, pauses, resumes
// and stops it in lockstep with its own transitions.
type PositionSource interface {
	Samples() <-chan models.Sample
	Start() error
	Stop()
	Pause()
	Resume()
}

// LastKnownPositioner is implemented by sources that remember the most recent
// fix seen before recording started.
type LastKnownPositioner interface {
	LastKnown() (models.Sample, bool)
}

// PermissionAuthority reports whether continuous location access is authorized.
type PermissionAuthority interface {
	Authorized() bool
}

// DisplaySink receives live telemetry. It has no way to talk back to the recorder.
type DisplaySink interface {
	SessionStarted(info models.SessionInfo)
	Publish(snapshot models.TelemetrySnapshot)
	SessionEnded(summary models.SummarySnapshot)
}

// ActivityPersister stores a completed session and returns the stored activity's ID.
type ActivityPersister interface {
	Persist(ctx context.Context, session models.RecordingSession) (string, error)
}

// Clock returns the current time.
type Clock func() time.Time
