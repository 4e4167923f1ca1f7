package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/policyhub/internal/auditctx"
	iauth "github.com/charlesng35/policyhub/internal/auth"
	"github.com/charlesng35/policyhub/pkg/errors"
	"github.com/charlesng35/policyhub/pkg/response"
)

const (
	CtxPrincipalKey = "authPrincipal"
	CtxUserIDKey    = "userID"
)

// Auth enforces bearer token authentication using the supplied verifier.
func Auth(verifier iauth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		principal, err := verifier.Verify(strings.TrimSpace(authz[7:]))
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		SetPrincipal(c, principal)
		c.Next()
	}
}

// SetPrincipal attaches an authenticated principal to the request, including
// the actor metadata the service layer records in the audit log.
func SetPrincipal(c *gin.Context, principal *iauth.Principal) {
	c.Set(CtxPrincipalKey, principal)
	c.Set(CtxUserIDKey, principal.ID)
	ctx := auditctx.WithActor(c.Request.Context(), auditctx.Actor{
		UserID:      principal.ID,
		Username:    principal.Username,
		Designation: principal.Designation,
		IPAddress:   c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	})
	c.Request = c.Request.WithContext(ctx)
}

// PrincipalFromContext returns the principal set by Auth.
func PrincipalFromContext(c *gin.Context) (*iauth.Principal, bool) {
	v, ok := c.Get(CtxPrincipalKey)
	if !ok {
		return nil, false
	}
	principal, ok := v.(*iauth.Principal)
	return principal, ok && principal != nil
}
