package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/policyhub/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, store handlers.HealthChecker) {
	health := handlers.Health(store)
	r.GET("/health", health)
	r.GET("/api/permissions/health", health)
}
