package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/policyhub/internal/permissions"
	"github.com/charlesng35/policyhub/pkg/errors"
	"github.com/charlesng35/policyhub/pkg/metrics"
	"github.com/charlesng35/policyhub/pkg/response"
)

// CtxEvaluationKey holds the guard evaluation that decided the request.
const CtxEvaluationKey = "permissionEvaluation"

// ResourceFunc derives the resource identifier a request targets.
type ResourceFunc func(c *gin.Context) string

// StaticResource always targets the same resource.
func StaticResource(resource string) ResourceFunc {
	return func(*gin.Context) string { return resource }
}

// ParamResource targets prefix + the value of a path parameter, for example
// ParamResource("client:", "id") maps /clients/42 to "client:42". A missing
// parameter targets the whole collection (prefix + "*").
func ParamResource(prefix, param string) ResourceFunc {
	return func(c *gin.Context) string {
		value := strings.TrimSpace(c.Param(param))
		if value == "" {
			return prefix + permissions.Wildcard
		}
		return prefix + value
	}
}

// Requirement pairs an action with the resource it applies to.
type Requirement struct {
	Action   permissions.Action
	Resource ResourceFunc
}

// RequirePermission guards a route with a single action on a fixed resource.
func RequirePermission(decider permissions.Decider, action permissions.Action, resource string) gin.HandlerFunc {
	return RequireAllPermissions(decider, Requirement{Action: action, Resource: StaticResource(resource)})
}

// RequirePermissionFor guards a route with an action on a request-derived resource.
func RequirePermissionFor(decider permissions.Decider, action permissions.Action, resource ResourceFunc) gin.HandlerFunc {
	return RequireAllPermissions(decider, Requirement{Action: action, Resource: resource})
}

// RequireAllPermissions passes only when every requirement is allowed. The
// first denial ends the chain with a 403 naming the failing requirement.
// Evaluation errors are rendered with the status of the underlying error.
func RequireAllPermissions(decider permissions.Decider, reqs ...Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		for _, req := range reqs {
			resource := req.Resource(c)
			eval, err := decider.Evaluate(c.Request.Context(), permissions.Request{
				UserID:   principal.ID,
				Action:   req.Action,
				Resource: resource,
			})
			if err != nil {
				metrics.PermissionChecks.WithLabelValues(string(req.Action), "error").Inc()
				response.Error(c, err)
				c.Abort()
				return
			}
			if !eval.Allowed {
				metrics.PermissionChecks.WithLabelValues(string(req.Action), "denied").Inc()
				c.Set(CtxEvaluationKey, eval)
				response.Forbidden(c, string(eval.RequiredAction), eval.RequiredResource, eval.Reason)
				return
			}
			metrics.PermissionChecks.WithLabelValues(string(req.Action), "allowed").Inc()
			c.Set(CtxEvaluationKey, eval)
		}

		c.Next()
	}
}
