package store

import (
	"io"

	"github.com/muktihari/fit/encoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"

	"runaway_tracker/internal/models"
	"runaway_tracker/internal/recorder"
)

const (
	degreesToSemicircles = 2147483648.0 / 180.0
	altitudeOffset       = 500.0
	altitudeScale        = 5.0
)

func fitSport(t models.ActivityType) typedef.Sport {
	switch t {
	case models.ActivityWalk:
		return typedef.SportWalking
	case models.ActivityRide:
		return typedef.SportCycling
	case models.ActivityHike:
		return typedef.SportHiking
	default:
		return typedef.SportRunning
	}
}

func fitRecord(p models.ActivityPoint, distance float64) *mesgdef.Record {
	alt := p.Altitude
	if alt < -altitudeOffset {
		alt = -altitudeOffset
	}
	return &mesgdef.Record{
		Timestamp:        p.Timestamp,
		PositionLat:      int32(p.Latitude * degreesToSemicircles),
		PositionLong:     int32(p.Longitude * degreesToSemicircles),
		Distance:         uint32(distance * 100), // cm
		EnhancedSpeed:    uint32(p.Speed * 1000), // mm/s
		EnhancedAltitude: uint32((alt + altitudeOffset) * altitudeScale),
	}
}

// WriteFIT encodes an activity as a FIT activity file: file id, one record
// per point, timer events, a single lap and the session summary.
func WriteFIT(w io.Writer, activity models.Activity, points []models.ActivityPoint) error {
	fit := proto.FIT{}

	fileID := mesgdef.FileId{
		Type:         typedef.FileActivity,
		Manufacturer: typedef.ManufacturerDevelopment,
		TimeCreated:  activity.StartTime,
	}
	fit.Messages = append(fit.Messages, fileID.ToMesg(nil))

	start := mesgdef.Event{
		Timestamp: activity.StartTime,
		Event:     typedef.EventTimer,
		EventType: typedef.EventTypeStart,
	}
	fit.Messages = append(fit.Messages, start.ToMesg(nil))

	var cumulative float64
	for i, p := range points {
		if i > 0 {
			prev := points[i-1]
			cumulative += recorder.Distance(prev.Latitude, prev.Longitude, p.Latitude, p.Longitude)
		}
		fit.Messages = append(fit.Messages, fitRecord(p, cumulative).ToMesg(nil))
	}

	stop := mesgdef.Event{
		Timestamp: activity.EndTime,
		Event:     typedef.EventTimer,
		EventType: typedef.EventTypeStopAll,
	}
	fit.Messages = append(fit.Messages, stop.ToMesg(nil))

	wall := uint32(activity.EndTime.Sub(activity.StartTime).Seconds() * 1000) // ms
	moving := uint32(activity.ElapsedSeconds * 1000)
	total := uint32(activity.DistanceMeters * 100)
	avgSpeed := uint32(activity.AverageSpeed * 1000)

	lap := mesgdef.Lap{
		Timestamp:        activity.EndTime,
		StartTime:        activity.StartTime,
		TotalElapsedTime: wall,
		TotalTimerTime:   moving,
		TotalDistance:    total,
		EnhancedAvgSpeed: avgSpeed,
		Event:            typedef.EventLap,
		EventType:        typedef.EventTypeStop,
	}
	fit.Messages = append(fit.Messages, lap.ToMesg(nil))

	session := mesgdef.Session{
		Timestamp:        activity.EndTime,
		StartTime:        activity.StartTime,
		TotalElapsedTime: wall,
		TotalTimerTime:   moving,
		TotalDistance:    total,
		EnhancedAvgSpeed: avgSpeed,
		Sport:            fitSport(activity.ActivityType),
		SubSport:         typedef.SubSportGeneric,
		Event:            typedef.EventSession,
		EventType:        typedef.EventTypeStop,
		Trigger:          typedef.SessionTriggerActivityEnd,
	}
	fit.Messages = append(fit.Messages, session.ToMesg(nil))

	return encoder.New(w).Encode(&fit)
}
