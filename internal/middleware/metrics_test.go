package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/policyhub/internal/permissions"
)

type modelDecider struct {
	allowed bool
}

func (d modelDecider) Evaluate(_ context.Context, req permissions.Request) (*permissions.Evaluation, error) {
	return &permissions.Evaluation{
		Allowed:          d.allowed,
		Model:            permissions.ModeResource,
		RequiredAction:   req.Action,
		RequiredResource: req.Resource,
		Reason:           "decided",
	}, nil
}

func TestMetricsLabelsGuardModel(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/metrics-test/open", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics-test/allowed", withPrincipal("U1"),
		RequirePermission(modelDecider{allowed: true}, permissions.ActionClientRead, "client:*"),
		func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics-test/denied", withPrincipal("U1"),
		RequirePermission(modelDecider{}, permissions.ActionClientRead, "client:*"),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/metrics-test/open", "/metrics-test/allowed", "/metrics-test/denied"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	w := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	require.Contains(t, body, `policyhub_api_latency_seconds_count{method="GET",model="none",path="/metrics-test/open",status="200"} 1`)
	require.Contains(t, body, `policyhub_api_latency_seconds_count{method="GET",model="resource",path="/metrics-test/allowed",status="200"} 1`)
	require.Contains(t, body, `policyhub_api_latency_seconds_count{method="GET",model="resource",path="/metrics-test/denied",status="403"} 1`)
}
