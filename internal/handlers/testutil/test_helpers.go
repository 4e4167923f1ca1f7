package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/policyhub/internal/api"
	"github.com/charlesng35/policyhub/internal/app"
	iauth "github.com/charlesng35/policyhub/internal/auth"
	sharedtestutil "github.com/charlesng35/policyhub/internal/database/testutil"
	"github.com/charlesng35/policyhub/internal/middleware"
	"github.com/charlesng35/policyhub/internal/permissions"
	"github.com/charlesng35/policyhub/internal/services"
	"github.com/charlesng35/policyhub/pkg/response"
)

// AdminUserID is granted PermissionAdministrator by NewEnv.
const AdminUserID = "user-admin"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T       *testing.T
	DB      *gorm.DB
	Router  *gin.Engine
	JWT     *iauth.JWTService
	Manager *permissions.Manager
	Config  *app.Config
}

// EnvOption adjusts the configuration before the router is built.
type EnvOption func(*app.Config)

// WithMode selects the decision model used by the guards.
func WithMode(mode permissions.Mode) EnvOption {
	return func(cfg *app.Config) {
		cfg.Permissions.Mode = string(mode)
	}
}

// WithRateLimit bounds the evaluate endpoints.
func WithRateLimit(requests int, window time.Duration) EnvOption {
	return func(cfg *app.Config) {
		cfg.Server.RateLimit.Requests = requests
		cfg.Server.RateLimit.Window = window
	}
}

// NewEnv provisions a fresh handler test environment with migrations and the
// default catalog applied. AdminUserID holds the PermissionAdministrator policy.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Server: app.ServerConfig{
			RateLimit: app.RateLimitConfig{Backend: "memory", Requests: 1000, Window: time.Minute},
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
		Permissions: app.PermissionsConfig{Mode: string(permissions.ModePolicy)},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         cfg.Auth.JWT.Secret,
		Issuer:         cfg.Auth.JWT.Issuer,
		AccessTokenTTL: cfg.Auth.JWT.TTL,
	})
	require.NoError(t, err)

	store, err := permissions.NewGormStore(db)
	require.NoError(t, err)
	manager, err := permissions.NewManager(store)
	require.NoError(t, err)
	_, err = manager.Seed(context.Background())
	require.NoError(t, err)

	mode, err := permissions.ParseMode(cfg.Permissions.Mode)
	require.NoError(t, err)
	decider, err := permissions.NewDecider(mode, manager)
	require.NoError(t, err)

	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)
	policySvc, err := services.NewPolicyService(manager, auditSvc)
	require.NoError(t, err)
	resourceSvc, err := services.NewResourcePermissionService(manager, auditSvc)
	require.NoError(t, err)
	assignmentSvc, err := services.NewAssignmentService(manager, auditSvc)
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		Config:              cfg,
		Verifier:            jwtSvc,
		Manager:             manager,
		Decider:             decider,
		Policies:            policySvc,
		ResourcePermissions: resourceSvc,
		Assignments:         assignmentSvc,
		Audit:               auditSvc,
		RateStore:           middleware.NewMemoryRateStore(nil),
	})
	require.NoError(t, err)

	env := &Env{
		T:       t,
		DB:      db,
		Router:  router,
		JWT:     jwtSvc,
		Manager: manager,
		Config:  cfg,
	}
	env.Grant(AdminUserID, "PermissionAdministrator")
	env.GrantResource(AdminUserID, "permissions_full_access")
	return env
}

// Token mints a bearer token for the given user.
func (e *Env) Token(userID string) string {
	e.T.Helper()
	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{UserID: userID, Username: userID})
	require.NoError(e.T, err)
	return token
}

// AdminToken mints a bearer token for AdminUserID.
func (e *Env) AdminToken() string {
	return e.Token(AdminUserID)
}

// Grant assigns a policy directly through the manager.
func (e *Env) Grant(userID, policyID string) {
	e.T.Helper()
	_, err := e.Manager.AssignPolicy(context.Background(), permissions.AssignInput{
		UserID:     userID,
		TargetID:   policyID,
		AssignedBy: "test-suite",
	})
	require.NoError(e.T, err)
}

// GrantResource assigns a resource permission directly through the manager.
func (e *Env) GrantResource(userID, permissionID string) {
	e.T.Helper()
	_, err := e.Manager.AssignResourcePermission(context.Background(), permissions.AssignInput{
		UserID:     userID,
		TargetID:   permissionID,
		AssignedBy: "test-suite",
	})
	require.NoError(e.T, err)
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeDenial parses the body written when a permission guard refuses a request.
func DecodeDenial(t *testing.T, w *httptest.ResponseRecorder) response.Denial {
	t.Helper()
	var denial response.Denial
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &denial), w.Body.String())
	return denial
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
