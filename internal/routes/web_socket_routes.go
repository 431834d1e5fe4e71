package routes

import (
	"github.com/gin-gonic/gin"

	"runaway_tracker/internal/controllers"
	"runaway_tracker/internal/middleware"
)

// WebSocketRoutes authenticate with ?token= since browsers cannot set headers on upgrade.
func WebSocketRoutes(r *gin.Engine, auth *middleware.Auth, wc *controllers.WebSocketController) {
	wsRoutes := r.Group("/ws")
	wsRoutes.Use(auth.RequireAuth())
	{
		wsRoutes.GET("/device", middleware.RequireRole("runner"), wc.DeviceSocket)
		wsRoutes.GET("/live", wc.LiveSocket)
	}
}
