package routes

import (
	"github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"runaway_tracker/internal/controllers"
	"runaway_tracker/internal/hub"
	"runaway_tracker/internal/middleware"
	"runaway_tracker/internal/position"
	"runaway_tracker/internal/recorder"
)

// Deps are the long-lived components the HTTP surface talks to.
type Deps struct {
	DB         *gorm.DB
	Auth       *middleware.Auth
	Recorder   *recorder.Recorder
	Source     *position.DeviceSource
	Hub        *hub.TelemetryHub
	Activities controllers.ActivityReader
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.SetLogger(
		logger.WithWriter(logrus.StandardLogger().Out),
		logger.WithSkipPath([]string{"/metrics", "/health"}),
	))

	r.GET("/health", controllers.Health(d.DB, d.Recorder))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	AuthRoutes(r, controllers.NewAuthController(d.DB, d.Auth))
	RecordingRoutes(r, d.Auth, controllers.NewRecordingController(d.Recorder))
	ActivityRoutes(r, d.Auth, controllers.NewActivityController(d.Activities))
	WebSocketRoutes(r, d.Auth, controllers.NewWebSocketController(d.Source, d.Hub))

	return r
}
