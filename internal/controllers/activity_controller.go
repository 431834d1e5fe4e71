package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"runaway_tracker/internal/middleware"
	"runaway_tracker/internal/models"
	"runaway_tracker/internal/store"
)

const timeLayout = time.RFC3339

// ActivityReader is the read side of the activity store.
type ActivityReader interface {
	Get(ctx context.Context, userID uint, id string) (*models.Activity, error)
	List(ctx context.Context, userID uint, limit, offset int) ([]models.Activity, error)
	Points(ctx context.Context, activityID string) ([]models.ActivityPoint, error)
}

type ActivityController struct {
	activities ActivityReader
}

func NewActivityController(activities ActivityReader) *ActivityController {
	return &ActivityController{activities: activities}
}

// ActivityResponse mirrors models.Activity with the geometry as GeoJSON.
type ActivityResponse struct {
	models.Activity
	Geometry json.RawMessage `json:"geometry,omitempty"`
}

func toActivityResponse(a models.Activity) ActivityResponse {
	gj, err := store.WKBToGeoJSON(a.Geometry)
	if err != nil {
		logrus.WithError(err).WithField("activity_id", a.ID).Warn("Stored geometry is not valid WKB")
	}
	return ActivityResponse{Activity: a, Geometry: gj}
}

func (ac *ActivityController) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	activities, err := ac.activities.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("List activities failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list activities"})
		return
	}

	out := make([]ActivityResponse, len(activities))
	for i, a := range activities {
		out[i] = toActivityResponse(a)
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// Get returns one activity; ?points=true includes the stored route points.
func (ac *ActivityController) Get(c *gin.Context) {
	activity, ok := ac.load(c)
	if !ok {
		return
	}
	if c.Query("points") == "true" {
		points, err := ac.activities.Points(c.Request.Context(), activity.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load points"})
			return
		}
		activity.Points = points
	}
	c.JSON(http.StatusOK, toActivityResponse(*activity))
}

// ExportFIT streams the activity as a FIT file.
func (ac *ActivityController) ExportFIT(c *gin.Context) {
	activity, ok := ac.load(c)
	if !ok {
		return
	}
	points, err := ac.activities.Points(c.Request.Context(), activity.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load points"})
		return
	}

	var buf bytes.Buffer
	if err := store.WriteFIT(&buf, *activity, points); err != nil {
		logrus.WithError(err).WithField("activity_id", activity.ID).Error("FIT export failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not encode FIT file"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", activity.ID+".fit"))
	c.Data(http.StatusOK, "application/vnd.ant.fit", buf.Bytes())
}

func (ac *ActivityController) load(c *gin.Context) (*models.Activity, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return nil, false
	}
	activity, err := ac.activities.Get(c.Request.Context(), userID, c.Param("id"))
	if errors.Is(err, store.ErrActivityNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "activity not found"})
		return nil, false
	}
	if err != nil {
		logrus.WithError(err).Error("Load activity failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load activity"})
		return nil, false
	}
	return activity, true
}
