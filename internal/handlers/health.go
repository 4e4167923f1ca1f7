package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/policyhub/pkg/errors"
	"github.com/charlesng35/policyhub/pkg/response"
)

// HealthChecker is the subset of the permission store the health probe needs.
type HealthChecker interface {
	Ping(ctx context.Context) error
	CountPolicies(ctx context.Context) (int64, error)
}

// Health reports whether the permission store is reachable and how many policies it holds.
func Health(store HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(requestContext(c), 2*time.Second)
		defer cancel()

		if store == nil {
			response.Error(c, errors.ErrServiceUnavailable)
			return
		}
		if err := store.Ping(ctx); err != nil {
			response.Error(c, errors.ErrServiceUnavailable.WithInternal(err))
			return
		}
		count, err := store.CountPolicies(ctx)
		if err != nil {
			response.Error(c, errors.ErrServiceUnavailable.WithInternal(err))
			return
		}

		response.Success(c, http.StatusOK, gin.H{
			"status":     "ok",
			"policies":   count,
			"checked_at": time.Now().UTC(),
		})
	}
}
