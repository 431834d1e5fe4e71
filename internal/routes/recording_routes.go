package routes

import (
	"github.com/gin-gonic/gin"

	"runaway_tracker/internal/controllers"
	"runaway_tracker/internal/middleware"
)

func RecordingRoutes(r *gin.Engine, auth *middleware.Auth, rc *controllers.RecordingController) {
	recording := r.Group("/recording")
	recording.Use(auth.RequireAuth())
	{
		recording.GET("", rc.Status)
	}

	// coaches may watch a session but only the runner drives it
	commands := recording.Group("")
	commands.Use(middleware.RequireRole("runner"))
	{
		commands.POST("/start", rc.Start)
		commands.POST("/pause", rc.Pause)
		commands.POST("/resume", rc.Resume)
		commands.POST("/stop", rc.Stop)
		commands.POST("/discard", rc.Discard)
		commands.POST("/save", rc.Save)
	}
}
