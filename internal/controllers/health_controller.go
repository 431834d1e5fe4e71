package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"runaway_tracker/internal/models"
)

// StateReporter is satisfied by the recorder.
type StateReporter interface {
	State() models.RecordingState
}

// Health reports liveness, database reachability and the recorder state.
func Health(db *gorm.DB, rec StateReporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		dbStatus := "ok"
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
				dbStatus = "unreachable"
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, gin.H{
			"status":    http.StatusText(status),
			"database":  dbStatus,
			"recording": rec.State(),
		})
	}
}
