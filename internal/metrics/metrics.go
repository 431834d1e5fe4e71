package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SamplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recorder_samples_total",
		Help: "Raw position samples by filter result",
	}, []string{"result"})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recorder_transitions_total",
		Help: "Recording state transitions",
	}, []string{"from", "to", "trigger"})

	GuardedNoops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recorder_guarded_noops_total",
		Help: "Commands refused because they were illegal in the current state",
	}, []string{"op", "state"})

	SessionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recorder_session_active",
		Help: "1 while a session is recording or paused",
	})

	TelemetryPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_snapshots_published_total",
		Help: "Telemetry snapshots delivered to the live display",
	})

	DistanceMeters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recorder_distance_meters",
		Help: "Cumulative distance of the live session",
	})

	PersistDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "activity_persist_duration_seconds",
		Help:    "Persistence hand-off latency",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	})

	PersistTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "activity_persist_total",
		Help: "Persistence hand-offs by result",
	}, []string{"result"})

	LiveViewers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_live_viewers",
		Help: "Connected live display websocket clients",
	})

	DroppedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dropped_messages_total",
		Help: "Messages dropped because a buffer was full",
	}, []string{"channel"})
)
