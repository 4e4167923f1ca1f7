package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/policyhub/internal/handlers"
	"github.com/charlesng35/policyhub/internal/middleware"
	"github.com/charlesng35/policyhub/internal/permissions"
)

const resourcePermissionResource = "permissions:resource_permission:"

func registerResourcePermissionRoutes(api *gin.RouterGroup, handler *handlers.ResourcePermissionHandler, decider permissions.Decider, evaluateLimit gin.HandlerFunc) {
	perm := func(action permissions.Action) gin.HandlerFunc {
		return middleware.RequirePermissionFor(decider, action, middleware.ParamResource(resourcePermissionResource, "id"))
	}
	user := func(action permissions.Action) gin.HandlerFunc {
		return middleware.RequirePermissionFor(decider, action, middleware.ParamResource(assignmentResource, "userID"))
	}

	rp := api.Group("/resource-permissions")
	{
		rp.POST("", perm(permissions.ActionPermissionsCreate), handler.Create)
		rp.GET("", perm(permissions.ActionPermissionsList), handler.List)
		rp.GET("/categorized", perm(permissions.ActionPermissionsList), handler.Categorized)
		rp.GET("/assignments/all", middleware.RequirePermission(decider, permissions.ActionPermissionsList, "permissions:assignments"), handler.AllAssignments)
		rp.GET("/:id", perm(permissions.ActionPermissionsRead), handler.Get)
		rp.PATCH("/:id", perm(permissions.ActionPermissionsUpdate), handler.Update)
		rp.DELETE("/:id", perm(permissions.ActionPermissionsDelete), handler.Delete)

		rp.POST("/assign/:userID/:permissionID", user(permissions.ActionPermissionsAssign), handler.Assign)
		rp.PATCH("/assign/:userID/:permissionID", user(permissions.ActionPermissionsAssign), handler.UpdateAssignment)
		rp.DELETE("/unassign/:userID/:permissionID", user(permissions.ActionPermissionsUnassign), handler.Unassign)
		rp.POST("/role-sets/:userID/:role", user(permissions.ActionPermissionsAssign), handler.AssignRoleSet)
		rp.GET("/user/:userID/assignments", user(permissions.ActionPermissionsRead), handler.UserAssignments)
		rp.GET("/user/:userID/permissions", user(permissions.ActionPermissionsRead), handler.UserPermissions)

		rp.POST("/evaluate", evaluateLimit, handler.Evaluate)
		rp.POST("/initialize", middleware.RequirePermission(decider, permissions.ActionPermissionsCreate, "permissions:defaults"), handler.Initialize)
	}
}
