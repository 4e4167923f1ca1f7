package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/policyhub/internal/handlers"
	"github.com/charlesng35/policyhub/internal/middleware"
	"github.com/charlesng35/policyhub/internal/permissions"
)

func registerAuditRoutes(api *gin.RouterGroup, handler *handlers.AuditHandler, decider permissions.Decider) {
	api.GET("/audit", middleware.RequirePermission(decider, permissions.ActionPermissionsRead, "permissions:audit"), handler.List)
}
