package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/policyhub/internal/permissions"
	"github.com/charlesng35/policyhub/pkg/metrics"
)

const unguardedModel = "none"

// Metrics records request latency metrics for each HTTP request, labelled with
// the permission model that guarded the route.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		status := strconv.Itoa(c.Writer.Status())
		metrics.APILatency.WithLabelValues(c.Request.Method, path, status, guardModel(c)).Observe(duration)
	}
}

func guardModel(c *gin.Context) string {
	value, ok := c.Get(CtxEvaluationKey)
	if !ok {
		return unguardedModel
	}
	eval, ok := value.(*permissions.Evaluation)
	if !ok || eval == nil || eval.Model == "" {
		return unguardedModel
	}
	return string(eval.Model)
}
