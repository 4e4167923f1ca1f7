package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/policyhub/internal/handlers"
	"github.com/charlesng35/policyhub/internal/middleware"
	"github.com/charlesng35/policyhub/internal/permissions"
)

const (
	policyResource     = "permissions:policy:"
	assignmentResource = "permissions:user:"
)

func registerPermissionRoutes(api *gin.RouterGroup, handler *handlers.PermissionHandler, decider permissions.Decider, evaluateLimit gin.HandlerFunc) {
	policy := func(action permissions.Action) gin.HandlerFunc {
		return middleware.RequirePermissionFor(decider, action, middleware.ParamResource(policyResource, "id"))
	}
	user := func(action permissions.Action) gin.HandlerFunc {
		return middleware.RequirePermissionFor(decider, action, middleware.ParamResource(assignmentResource, "userID"))
	}

	perms := api.Group("/permissions")
	{
		perms.POST("/policies", policy(permissions.ActionPermissionsCreate), handler.CreatePolicy)
		perms.GET("/policies", policy(permissions.ActionPermissionsList), handler.ListPolicies)
		perms.GET("/policies/:id", policy(permissions.ActionPermissionsRead), handler.GetPolicy)
		perms.PATCH("/policies/:id", policy(permissions.ActionPermissionsUpdate), handler.UpdatePolicy)
		perms.DELETE("/policies/:id", policy(permissions.ActionPermissionsDelete), handler.DeletePolicy)
		perms.GET("/policies/:id/users", policy(permissions.ActionPermissionsRead), handler.PolicyUsers)

		perms.POST("/users/:userID/policies/:policyID", user(permissions.ActionPermissionsAssign), handler.AssignPolicy)
		perms.PATCH("/users/:userID/policies/:policyID", user(permissions.ActionPermissionsAssign), handler.UpdatePolicyAssignment)
		perms.DELETE("/users/:userID/policies/:policyID", user(permissions.ActionPermissionsUnassign), handler.UnassignPolicy)
		perms.GET("/users/:userID/policies", user(permissions.ActionPermissionsRead), handler.UserPolicies)
		perms.GET("/users/:userID/permissions", user(permissions.ActionPermissionsRead), handler.UserPermissions)
		perms.POST("/users/:userID/role-sets/:role", user(permissions.ActionPermissionsAssign), handler.AssignRoleSet)

		perms.GET("/assignments", middleware.RequirePermission(decider, permissions.ActionPermissionsList, "permissions:assignments"), handler.Assignments)

		perms.POST("/evaluate", evaluateLimit, handler.Evaluate)
		perms.POST("/evaluate/admin", evaluateLimit, middleware.RequirePermission(decider, permissions.ActionPermissionsEvaluate, "permissions:evaluate"), handler.EvaluateAdmin)

		perms.POST("/initialize", middleware.RequirePermission(decider, permissions.ActionPermissionsCreate, "permissions:defaults"), handler.Initialize)
		perms.POST("/cleanup/expired", middleware.RequirePermission(decider, permissions.ActionPermissionsUpdate, "permissions:assignments"), handler.CleanupExpired)
	}
}
