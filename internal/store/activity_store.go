package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"runaway_tracker/internal/models"
)

const (
	pointBatchSize  = 500
	defaultPageSize = 50
	maxPageSize     = 200
)

// ActivityStore persists completed recordings with gorm.
type ActivityStore struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewActivityStore(db *gorm.DB) *ActivityStore {
	return &ActivityStore{db: db, log: logrus.WithField("component", "activity_store")}
}

// BuildActivity turns a completed session into the activity row and its points.
func BuildActivity(userID uint, session models.RecordingSession) (models.Activity, error) {
	if session.EndTime == nil {
		return models.Activity{}, errors.New("session has no end time")
	}
	if len(session.Route) == 0 {
		return models.Activity{}, errors.New("session has no route points")
	}

	geometry, err := EncodeWKB(session.Route)
	if err != nil {
		return models.Activity{}, fmt.Errorf("encode geometry: %w", err)
	}

	elapsed := session.ElapsedTime(*session.EndTime).Seconds()
	var avg float64
	if elapsed > 0 {
		avg = session.Distance / elapsed
	}

	activity := models.Activity{
		ID:             uuid.NewString(),
		UserID:         userID,
		SessionID:      session.ID,
		Name:           session.Name,
		ActivityType:   session.ActivityType,
		StartTime:      session.StartTime,
		EndTime:        *session.EndTime,
		ElapsedSeconds: elapsed,
		PausedSeconds:  session.PausedDuration.Seconds(),
		DistanceMeters: session.Distance,
		AverageSpeed:   avg,
		Polyline:       EncodePolyline(session.Route),
		Geometry:       geometry,
	}

	activity.Points = make([]models.ActivityPoint, len(session.Route))
	for i, p := range session.Route {
		activity.Points[i] = models.ActivityPoint{
			ActivityID: activity.ID,
			Seq:        i,
			Latitude:   p.Latitude,
			Longitude:  p.Longitude,
			Accuracy:   p.Accuracy,
			Speed:      p.Speed,
			Altitude:   p.Altitude,
			Timestamp:  p.Timestamp,
		}
	}
	return activity, nil
}

// Persist writes the activity and its points in one transaction. Saving the
// same session twice returns the activity stored the first time.
func (s *ActivityStore) Persist(ctx context.Context, session models.RecordingSession) (string, error) {
	userID, ok := UserIDFrom(ctx)
	if !ok {
		return "", ErrNotAuthenticated
	}

	activity, err := BuildActivity(userID, session)
	if err != nil {
		return "", err
	}
	points := activity.Points
	activity.Points = nil

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&activity).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(&points, pointBatchSize).Error
	})
	if err != nil {
		if IsUniqueViolation(err) {
			var existing models.Activity
			if lookup := s.db.WithContext(ctx).Where("session_id = ?", session.ID).First(&existing).Error; lookup == nil {
				s.log.WithField("session_id", session.ID).Info("Session already stored, returning existing activity.")
				return existing.ID, nil
			}
		}
		return "", err
	}

	s.log.WithFields(logrus.Fields{
		"activity_id": activity.ID,
		"user_id":     userID,
		"points":      len(points),
	}).Info("Activity stored")
	return activity.ID, nil
}

// Get returns one of the runner's activities without its points.
func (s *ActivityStore) Get(ctx context.Context, userID uint, id string) (*models.Activity, error) {
	var activity models.Activity
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&activity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrActivityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

// List returns the runner's activities, newest first.
func (s *ActivityStore) List(ctx context.Context, userID uint, limit, offset int) ([]models.Activity, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	var activities []models.Activity
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("start_time DESC").
		Limit(limit).Offset(offset).
		Find(&activities).Error
	return activities, err
}

// Points returns the stored route of an activity in recording order.
func (s *ActivityStore) Points(ctx context.Context, activityID string) ([]models.ActivityPoint, error) {
	var points []models.ActivityPoint
	err := s.db.WithContext(ctx).Where("activity_id = ?", activityID).Order("seq ASC").Find(&points).Error
	return points, err
}
