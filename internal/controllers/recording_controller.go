package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"runaway_tracker/internal/middleware"
	"runaway_tracker/internal/models"
	"runaway_tracker/internal/recorder"
	"runaway_tracker/internal/store"
)

// RecordingController exposes the live recorder's commands over HTTP.
type RecordingController struct {
	rec *recorder.Recorder
}

func NewRecordingController(rec *recorder.Recorder) *RecordingController {
	return &RecordingController{rec: rec}
}

type startInput struct {
	Name         string `json:"name"`
	ActivityType string `json:"activity_type"`
}

// sessionView is the session without its full route.
type sessionView struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	ActivityType   models.ActivityType `json:"activity_type"`
	StartTime      string              `json:"start_time"`
	EndTime        string              `json:"end_time,omitempty"`
	Distance       float64             `json:"distance"`
	PausedDuration float64             `json:"paused_seconds"`
	PointCount     int                 `json:"point_count"`
}

func toSessionView(s *models.RecordingSession) *sessionView {
	if s == nil {
		return nil
	}
	v := &sessionView{
		ID:             s.ID,
		Name:           s.Name,
		ActivityType:   s.ActivityType,
		StartTime:      s.StartTime.UTC().Format(timeLayout),
		Distance:       s.Distance,
		PausedDuration: s.PausedDuration.Seconds(),
		PointCount:     len(s.Route),
	}
	if s.EndTime != nil {
		v.EndTime = s.EndTime.UTC().Format(timeLayout)
	}
	return v
}

// status renders one snapshot, with metrics in the caller's preferred unit.
func (rc *RecordingController) status(c *gin.Context) (gin.H, models.RecordingState) {
	snap := rc.rec.Snapshot()
	m := snap.Metrics
	if unit := middleware.DistanceUnit(c); unit != "" {
		m = m.In(recorder.ParseDistanceUnit(unit))
	}
	return gin.H{
		"state":        snap.State,
		"auto_paused":  snap.AutoPaused,
		"capabilities": snap.Capabilities,
		"metrics":      m,
		"session":      toSessionView(snap.Session),
	}, snap.State
}

// Status returns state, capabilities, live metrics and the session summary.
func (rc *RecordingController) Status(c *gin.Context) {
	body, _ := rc.status(c)
	c.JSON(http.StatusOK, body)
}

func (rc *RecordingController) Start(c *gin.Context) {
	var input startInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	kind := models.ActivityRun
	if t := strings.ToLower(strings.TrimSpace(input.ActivityType)); t != "" {
		kind = models.ActivityType(t)
		if !kind.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid activity_type"})
			return
		}
	}

	applied, err := rc.rec.Start(strings.TrimSpace(input.Name), kind)
	switch {
	case errors.Is(err, recorder.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	case err != nil:
		logrus.WithError(err).Error("Start recording: position source failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start position source"})
		return
	}
	rc.respond(c, applied, "start")
}

func (rc *RecordingController) Pause(c *gin.Context) {
	rc.respond(c, rc.rec.Pause(), "pause")
}

func (rc *RecordingController) Resume(c *gin.Context) {
	rc.respond(c, rc.rec.Resume(), "resume")
}

func (rc *RecordingController) Stop(c *gin.Context) {
	rc.respond(c, rc.rec.Stop(), "stop")
}

func (rc *RecordingController) Discard(c *gin.Context) {
	rc.respond(c, rc.rec.Discard(), "discard")
}

// Save hands the completed session to the activity store on behalf of the caller.
func (rc *RecordingController) Save(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	ctx := store.WithUserID(c.Request.Context(), userID)
	id, err := rc.rec.Persist(ctx)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"activity_id": id, "state": rc.rec.State()})
	case errors.Is(err, recorder.ErrNoSession),
		errors.Is(err, recorder.ErrNotCompleted),
		errors.Is(err, recorder.ErrEmptyRoute):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": rc.rec.State()})
	case errors.Is(err, store.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not store activity, try again", "state": rc.rec.State()})
	}
}

// respond reports a guarded command. A refused command is a conflict, not an error.
func (rc *RecordingController) respond(c *gin.Context, applied bool, op string) {
	body, state := rc.status(c)
	body["applied"] = applied
	if !applied {
		body["error"] = op + " not allowed in state " + string(state)
		c.JSON(http.StatusConflict, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
