package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/policyhub/internal/middleware"
	"github.com/charlesng35/policyhub/pkg/errors"
	"github.com/charlesng35/policyhub/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUserID returns the authenticated user id or writes a 401.
func currentUserID(c *gin.Context) (string, bool) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok || principal.ID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return "", false
	}
	return principal.ID, true
}
