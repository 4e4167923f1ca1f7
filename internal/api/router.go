package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/policyhub/internal/app"
	iauth "github.com/charlesng35/policyhub/internal/auth"
	"github.com/charlesng35/policyhub/internal/handlers"
	"github.com/charlesng35/policyhub/internal/middleware"
	"github.com/charlesng35/policyhub/internal/permissions"
	"github.com/charlesng35/policyhub/internal/services"
)

// Dependencies bundles everything the HTTP layer is built from.
type Dependencies struct {
	Config              *app.Config
	Verifier            iauth.TokenVerifier
	Manager             *permissions.Manager
	Decider             permissions.Decider
	Policies            *services.PolicyService
	ResourcePermissions *services.ResourcePermissionService
	Assignments         *services.AssignmentService
	Audit               *services.AuditService
	RateStore           middleware.RateStore
}

func (d Dependencies) validate() error {
	switch {
	case d.Config == nil:
		return errors.New("config must be provided")
	case d.Verifier == nil:
		return errors.New("token verifier must be provided")
	case d.Manager == nil:
		return errors.New("permission manager must be provided")
	case d.Decider == nil:
		return errors.New("decider must be provided")
	case d.Policies == nil, d.ResourcePermissions == nil, d.Assignments == nil, d.Audit == nil:
		return errors.New("services must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())

	registerHealthRoutes(r, deps.Manager.Store())

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.Verifier))

	evaluateLimit := middleware.RateLimit(deps.RateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window)

	permHandler, err := handlers.NewPermissionHandler(deps.Policies, deps.Assignments, deps.Decider)
	if err != nil {
		return nil, err
	}
	registerPermissionRoutes(api, permHandler, deps.Decider, evaluateLimit)

	resourceHandler, err := handlers.NewResourcePermissionHandler(deps.ResourcePermissions, deps.Assignments, permissions.NewResourceEvaluator(deps.Manager))
	if err != nil {
		return nil, err
	}
	registerResourcePermissionRoutes(api, resourceHandler, deps.Decider, evaluateLimit)

	auditHandler, err := handlers.NewAuditHandler(deps.Audit)
	if err != nil {
		return nil, err
	}
	registerAuditRoutes(api, auditHandler, deps.Decider)

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
