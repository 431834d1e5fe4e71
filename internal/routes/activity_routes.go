package routes

import (
	"github.com/gin-gonic/gin"

	"runaway_tracker/internal/controllers"
	"runaway_tracker/internal/middleware"
)

func ActivityRoutes(r *gin.Engine, auth *middleware.Auth, ac *controllers.ActivityController) {
	activities := r.Group("/activities")
	activities.Use(auth.RequireAuth())
	{
		activities.GET("", ac.List)
		activities.GET("/:id", ac.Get)
		activities.GET("/:id/export.fit", ac.ExportFIT)
	}
}
