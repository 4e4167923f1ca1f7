package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, "console", cfg.Server.LogFormat)
	require.Equal(t, "database", cfg.Server.RateLimit.Backend)
	require.Equal(t, 30, cfg.Server.RateLimit.Requests)
	require.Equal(t, 30*time.Second, cfg.Server.RateLimit.Window)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 6543, cfg.Database.Postgres.Port)

	require.Equal(t, "jwt-secret-for-tests-only-0123456789", cfg.Auth.JWT.Secret)
	require.Equal(t, "policyhub-test", cfg.Auth.JWT.Issuer)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)

	require.Equal(t, "hybrid", cfg.Permissions.Mode)
	require.False(t, cfg.Permissions.SeedDefaults)
	require.Equal(t, []string{"user-admin", "user-ops"}, cfg.Permissions.BootstrapAdmins)
	require.Equal(t, "expr", cfg.Permissions.Conditions.Engine)

	require.Equal(t, "@every 1m", cfg.Maintenance.SweepSchedule)
	require.Equal(t, "@daily", cfg.Maintenance.AuditSchedule)
	require.Equal(t, 30, cfg.Maintenance.AuditRetentionDays)

	require.False(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
}

func TestLoadConfigDefaultsWithEnvOverride(t *testing.T) {
	t.Setenv("POLICYHUB_AUTH_JWT_SECRET", "env-secret")
	t.Setenv("POLICYHUB_PERMISSIONS_MODE", "resource")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "memory", cfg.Server.RateLimit.Backend)
	require.Equal(t, 120, cfg.Server.RateLimit.Requests)
	require.Equal(t, time.Minute, cfg.Server.RateLimit.Window)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "env-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, 15*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, "resource", cfg.Permissions.Mode)
	require.True(t, cfg.Permissions.SeedDefaults)
	require.Equal(t, "@every 5m", cfg.Maintenance.SweepSchedule)
	require.Equal(t, 90, cfg.Maintenance.AuditRetentionDays)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
}

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "auth.jwt.secret")
}

func TestConfigValidateCollectsProblems(t *testing.T) {
	cfg := &Config{
		Server:      ServerConfig{Port: 0, RateLimit: RateLimitConfig{Backend: "redis"}},
		Permissions: PermissionsConfig{Mode: "acl", Conditions: ConditionsConfig{Engine: "lua"}},
	}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"server.port", "auth.jwt.secret", "permissions.mode", "conditions.engine", "rate_limit.backend"} {
		require.Contains(t, err.Error(), want)
	}
}

func TestDatabaseConnectionConfig(t *testing.T) {
	db := DatabaseConfig{
		Driver:       "mysql",
		MaxOpenConns: 10,
		MySQL: DBAuthConfig{
			Host:     "mysql.internal",
			Port:     3307,
			Database: "policyhub",
			Username: "svc",
			Password: "pw",
			Options:  map[string]string{"tls": "true"},
		},
		Postgres: DBAuthConfig{Host: "ignored"},
	}

	conn := db.ConnectionConfig()
	require.Equal(t, "mysql", conn.Driver)
	require.Equal(t, "mysql.internal", conn.Host)
	require.Equal(t, 3307, conn.Port)
	require.Equal(t, "policyhub", conn.Name)
	require.Equal(t, "svc", conn.User)
	require.Equal(t, "true", conn.Options["tls"])
	require.Equal(t, 10, conn.MaxOpenConns)

	sqlite := DatabaseConfig{Driver: "sqlite", Path: "./data/test.sqlite"}.ConnectionConfig()
	require.Equal(t, "./data/test.sqlite", sqlite.Path)
	require.Empty(t, sqlite.Host)
}
